package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the editorial table kept outside the binary.
type Policy struct {
	BlockedDomains []string      `yaml:"blocked_domains"`
	Aggregators    []string      `yaml:"aggregators"`
	Preferred      []string      `yaml:"preferred"`
	TopicBuckets   []TopicBucket `yaml:"topic_buckets"`
	StopWords      []string      `yaml:"stop_words"`
}

type TopicBucket struct {
	Label   string `yaml:"label"`
	Pattern string `yaml:"pattern"`
}

// DefaultPolicy is used when no policy file exists.
func DefaultPolicy() *Policy {
	return &Policy{
		BlockedDomains: []string{"pinterest.com", "facebook.com", "x.com", "twitter.com", "youtube.com"},
		Aggregators:    []string{"news.google.com", "msn.com", "yahoo.com", "seznamzpravy.cz", "flipboard.com"},
		Preferred:      []string{"reuters.com", "apnews.com", "bbc.com", "ct24.ceskatelevize.cz", "irozhlas.cz"},
	}
}

// LoadPolicy reads the YAML policy file. A missing file yields the defaults.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultPolicy(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}
	for i, b := range p.TopicBuckets {
		if b.Label == "" || b.Pattern == "" {
			return nil, fmt.Errorf("topic bucket %d needs both label and pattern", i)
		}
	}
	return &p, nil
}
