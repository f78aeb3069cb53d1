package ingest

import (
	"strings"
	"testing"
)

const guidelinePage = `<!DOCTYPE html>
<html>
<head>
  <title>  Pulmonary Nodule
   Management </title>
  <meta name="description" content="Follow-up of incidental solid nodules.">
  <style>body { color: red; }</style>
</head>
<body>
  <nav><a href="/">Home</a></nav>
  <header>Site banner</header>
  <article>
    <h1>Pulmonary nodule</h1>
    <p>A solid nodule under 6 mm needs
       no routine follow-up.</p>
    <ul><li>6 to 8 mm: CT at 6 to 12 months</li><li>Over 8 mm: consider PET/CT</li></ul>
    <script>track();</script>
  </article>
  <footer>Copyright</footer>
</body>
</html>`

func TestExtractPage_HTML(t *testing.T) {
	page, err := ExtractPage(guidelinePage, "text/html; charset=utf-8")
	if err != nil {
		t.Fatalf("ExtractPage failed: %v", err)
	}

	if page.Title != "Pulmonary Nodule Management" {
		t.Errorf("unexpected title %q", page.Title)
	}
	if page.Description != "Follow-up of incidental solid nodules." {
		t.Errorf("unexpected description %q", page.Description)
	}

	want := "Pulmonary nodule\nA solid nodule under 6 mm needs no routine follow-up.\n6 to 8 mm: CT at 6 to 12 months\nOver 8 mm: consider PET/CT"
	if page.Text != want {
		t.Errorf("unexpected text:\n%q\nwant:\n%q", page.Text, want)
	}
	for _, hidden := range []string{"Home", "Site banner", "Copyright", "track", "color"} {
		if strings.Contains(page.Text, hidden) {
			t.Errorf("text should not contain %q", hidden)
		}
	}
}

func TestExtractPage_FallsBackToBodyAndHeading(t *testing.T) {
	page, err := ExtractPage(`<html><body><h1>Effusion</h1><div>Blunted costophrenic angle.</div></body></html>`, "")
	if err != nil {
		t.Fatal(err)
	}
	if page.Title != "Effusion" {
		t.Errorf("expected h1 as title, got %q", page.Title)
	}
	if page.Text != "Effusion\nBlunted costophrenic angle." {
		t.Errorf("unexpected text %q", page.Text)
	}
}

func TestExtractPage_PlainText(t *testing.T) {
	page, err := ExtractPage("Line one   here\n\n\nLine two", "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	if page.Text != "Line one here\nLine two" {
		t.Errorf("unexpected text %q", page.Text)
	}
}

func TestExtractPage_Unsupported(t *testing.T) {
	if _, err := ExtractPage("%PDF-1.7", "application/pdf"); err == nil {
		t.Error("expected error for PDF content")
	}
}
