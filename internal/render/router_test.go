package render

import "testing"

func TestDecideAlwaysAndNever(t *testing.T) {
	if !Decide(ModeAlways, "example.com", 10000, "<html><body>lots of text</body></html>") {
		t.Fatal("ModeAlways must always escalate")
	}
	if Decide(ModeNever, "example.com", 0, "") {
		t.Fatal("ModeNever must never escalate")
	}
}

func TestDecideAutoEscalatesOnLowWordCount(t *testing.T) {
	if !Decide(ModeAuto, "example.com", 5, "<html><body>short</body></html>") {
		t.Fatal("expected auto mode to escalate on low word count")
	}
}

func TestDecideAutoDoesNotEscalateRichPage(t *testing.T) {
	long := ""
	for i := 0; i < 200; i++ {
		long += "word "
	}
	if Decide(ModeAuto, "example.com", 500, "<html><body>"+long+"</body></html>") {
		t.Fatal("did not expect escalation for a content-rich page")
	}
}

func TestDecideAutoEscalatesOnSPAMarker(t *testing.T) {
	html := `<html><body><div id="root"></div><script src="bundle.js"></script></body></html>`
	if !Decide(ModeAuto, "example.com", 500, html) {
		t.Fatal("expected escalation for SPA root marker even with a high reported word count")
	}
}

func TestDecideAutoEscalatesOnFrameworkHydrationMarkers(t *testing.T) {
	for _, html := range []string{
		`<html><body><script>window.__NEXT_DATA__ = {}</script></body></html>`,
		`<html><body><div data-server-rendered="true"></div><script>window.__NUXT__={}</script></body></html>`,
		`<html><body><script src="/build/_assets/__remix_manifest-abc.js"></script></body></html>`,
	} {
		if !Decide(ModeAuto, "example.com", 500, html) {
			t.Errorf("expected escalation for framework hydration marker in %q", html)
		}
	}
}
