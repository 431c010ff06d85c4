package lang

import "testing"

func TestIsCzech(t *testing.T) {
	cz := "Společnost Eli Lilly oznámila, že její lék Mounjaro překonal další milník v počtu předepsaných receptů."
	en := "Eli Lilly said on Tuesday that its drug Mounjaro passed another milestone in the number of prescriptions."

	d := NewDetector("cs")
	if !d.IsTarget(cz) {
		t.Errorf("Czech text not detected")
	}
	if d.IsTarget(en) {
		t.Errorf("English text detected as Czech")
	}
	if !Is("en", en) {
		t.Errorf("English text not detected as English")
	}
	if Is("cs", "") {
		t.Errorf("empty text detected as Czech")
	}
}

func TestIsOtherLanguages(t *testing.T) {
	if !Is("uk", "Україна отримала нову партію вакцин від партнерів") {
		t.Errorf("Ukrainian not detected")
	}
	if Is("uk", "Россия объявила о новых мерах экономической поддержки") {
		t.Errorf("Russian detected as Ukrainian")
	}
	if !Is("da", "Regeringen har ikke fremlagt en plan for det nye år") {
		t.Errorf("Danish not detected")
	}
	if !Is("sk", "Vláda schválila nový zákon o podpore malých podnikov") {
		t.Errorf("Slovak not detected")
	}
}

func TestName(t *testing.T) {
	if got := Name("cs"); got != "Czech" {
		t.Errorf("Name(cs) = %q", got)
	}
}

func TestHTML(t *testing.T) {
	if !LooksHTML("<p>Hello</p>") || !LooksHTML("a&nbsp;b") {
		t.Errorf("markup not detected")
	}
	if LooksHTML("5 < 6 and 7 > 3") {
		t.Errorf("comparison detected as markup")
	}
	got := StripHTML("<p>Hello <b>world</b></p>\n<script>x()</script>")
	if got != "Hello world" {
		t.Errorf("StripHTML = %q", got)
	}
	if got := StripHTML("  plain   text "); got != "plain text" {
		t.Errorf("StripHTML plain = %q", got)
	}
}
