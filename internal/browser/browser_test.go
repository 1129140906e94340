package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/chromedp/cdproto/target"

	"github.com/berth-dev/nftbatch/internal/captcha"
	"github.com/berth-dev/nftbatch/internal/items"
)

func TestCheckBrowser(t *testing.T) {
	for _, name := range []string{"chrome", "Chrome", "chromium", ""} {
		if err := CheckBrowser(name); err != nil {
			t.Errorf("CheckBrowser(%q) = %v, want nil", name, err)
		}
	}
	if err := CheckBrowser("firefox"); err == nil || !strings.Contains(err.Error(), "not supported") {
		t.Errorf("CheckBrowser(firefox) = %v, want not supported", err)
	}
	if err := CheckBrowser("safari"); err == nil {
		t.Error("CheckBrowser(safari) = nil, want error")
	}
}

func TestOptionsFlags(t *testing.T) {
	o := Options{ExtensionDir: "/ext/metamask", Profile: "Profile 2"}
	f := o.flags()

	if f["disable-extensions"] != false {
		t.Errorf("disable-extensions = %v, want false", f["disable-extensions"])
	}
	if f["headless"] != false {
		t.Errorf("headless = %v, want false", f["headless"])
	}
	if f["load-extension"] != "/ext/metamask" || f["disable-extensions-except"] != "/ext/metamask" {
		t.Errorf("extension flags = %v, %v", f["load-extension"], f["disable-extensions-except"])
	}
	if f["profile-directory"] != "Profile 2" {
		t.Errorf("profile-directory = %v, want Profile 2", f["profile-directory"])
	}

	o.Headless = true
	if got := o.flags()["headless"]; got != "new" {
		t.Errorf("headless = %v, want new", got)
	}
}

func TestOptionsFlagsWithoutExtension(t *testing.T) {
	f := Options{}.flags()
	if _, ok := f["load-extension"]; ok {
		t.Error("load-extension set without an extension dir")
	}
	if _, ok := f["profile-directory"]; ok {
		t.Error("profile-directory set without a profile")
	}
}

func TestAllocatorOptionsAppendsToDefaults(t *testing.T) {
	base := len(Options{}.allocatorOptions())
	full := len(Options{UserDataDir: "/tmp/p", ExecPath: "/usr/bin/chromium", ExtensionDir: "/ext"}.allocatorOptions())
	// Two extension flags plus user data dir and exec path.
	if full != base+4 {
		t.Errorf("len(allocatorOptions) = %d, want %d", full, base+4)
	}
}

func TestNewWallet(t *testing.T) {
	tests := []struct {
		name, id string
		wantName string
		wantID   string
	}{
		{"metamask", "", "metamask", MetaMaskID},
		{"MetaMask", "", "metamask", MetaMaskID},
		{"", "", "metamask", MetaMaskID},
		{"coinbase", "", "coinbase", CoinbaseID},
		{"metamask", "abcdefghijklmnop", "metamask", "abcdefghijklmnop"},
	}
	for _, tt := range tests {
		w, err := NewWallet(tt.name, tt.id)
		if err != nil {
			t.Fatalf("NewWallet(%q) error = %v", tt.name, err)
		}
		if w.Name != tt.wantName || w.ExtensionID != tt.wantID {
			t.Errorf("NewWallet(%q, %q) = %s/%s, want %s/%s", tt.name, tt.id, w.Name, w.ExtensionID, tt.wantName, tt.wantID)
		}
	}
	if _, err := NewWallet("phantom", ""); err == nil {
		t.Error("NewWallet(phantom) = nil error, want error")
	}
}

func TestWalletIsPopup(t *testing.T) {
	w, _ := NewWallet("metamask", "")
	tests := []struct {
		info *target.Info
		want bool
	}{
		{&target.Info{Type: "page", URL: "chrome-extension://" + MetaMaskID + "/notification.html#connect"}, true},
		{&target.Info{Type: "page", URL: w.HomeURL() + "#unlock"}, false},
		{&target.Info{Type: "background_page", URL: "chrome-extension://" + MetaMaskID + "/background.html"}, false},
		{&target.Info{Type: "page", URL: "https://opensea.io/"}, false},
		{&target.Info{Type: "page", URL: "chrome-extension://" + CoinbaseID + "/index.html"}, false},
	}
	for _, tt := range tests {
		if got := w.isPopup(tt.info); got != tt.want {
			t.Errorf("isPopup(%s %s) = %v, want %v", tt.info.Type, tt.info.URL, got, tt.want)
		}
	}
}

func TestJSStringEscapes(t *testing.T) {
	got := jsString(`say "hi"` + "\n</script>")
	if !strings.HasPrefix(got, `"say \"hi\"\n`) {
		t.Errorf("jsString = %s", got)
	}
	if strings.Contains(got, "</script>") {
		t.Errorf("jsString left a closing script tag: %s", got)
	}
	if jsStrings(nil) != "[]" {
		t.Errorf("jsStrings(nil) = %s, want []", jsStrings(nil))
	}
}

func TestTruthy(t *testing.T) {
	tests := map[string]bool{
		"":       false,
		"null":   false,
		"false":  false,
		"0":      false,
		`""`:     false,
		"true":   true,
		"1":      true,
		`"x"`:    true,
		`{"a":1}`: true,
	}
	for in, want := range tests {
		if got := truthy([]byte(in)); got != want {
			t.Errorf("truthy(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseCaptchaScan(t *testing.T) {
	task, err := parseCaptchaScan([]byte("null"))
	if err != nil || task != nil {
		t.Fatalf("parseCaptchaScan(null) = %v, %v; want nil, nil", task, err)
	}

	task, err = parseCaptchaScan([]byte(`{"kind":"hcaptcha","sitekey":"abc","url":"https://opensea.io/asset/create"}`))
	if err != nil {
		t.Fatalf("parseCaptchaScan error = %v", err)
	}
	if task.Kind != captcha.KindHCaptcha || task.SiteKey != "abc" || task.PageURL != "https://opensea.io/asset/create" {
		t.Errorf("parseCaptchaScan = %+v", task)
	}

	if _, err := parseCaptchaScan([]byte(`{"kind":"recaptcha_v2","sitekey":""}`)); err == nil {
		t.Error("parseCaptchaScan without site key = nil error, want error")
	}
}

func TestInjectScriptTargetsWidgetField(t *testing.T) {
	re := injectScript(captcha.KindReCaptchaV2, "tok-1")
	if !strings.Contains(re, `"g-recaptcha-response"`) || !strings.Contains(re, `"tok-1"`) {
		t.Errorf("recaptcha script missing field or token:\n%s", re)
	}
	h := injectScript(captcha.KindHCaptcha, "tok-2")
	if !strings.Contains(h, `"h-captcha-response"`) {
		t.Errorf("hcaptcha script missing field:\n%s", h)
	}
}

func TestAttributeRows(t *testing.T) {
	traits := traitRows([]items.Trait{{Type: "Eyes", Name: "Blue"}})
	if len(traits) != 1 || traits[0][0] != "Eyes" || traits[0][1] != "Blue" {
		t.Errorf("traitRows = %v", traits)
	}
	stats := statRows([]items.Stat{{Name: "Speed", Value: 3, Max: 5}})
	if len(stats) != 1 || strings.Join(stats[0], ",") != "Speed,3,5" {
		t.Errorf("statRows = %v", stats)
	}

	script := fillRowsScript([][]string{{"Eyes", `"Blue"`}})
	if !strings.Contains(script, `[["Eyes","\"Blue\""]]`) {
		t.Errorf("fillRowsScript did not embed rows as JSON:\n%s", script)
	}
}

func TestMarketplaceStages(t *testing.T) {
	m := &Marketplace{BaseURL: "https://opensea.io/"}
	var kinds []items.Stage
	for _, s := range m.Stages() {
		kinds = append(kinds, s.Kind())
	}
	want := []items.Stage{items.StageUpload, items.StageSale, items.StageDelete}
	if len(kinds) != len(want) {
		t.Fatalf("Stages() = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("Stages()[%d] = %v, want %v", i, kinds[i], want[i])
		}
	}
	if got := m.url("/asset/create"); got != "https://opensea.io/asset/create" {
		t.Errorf("url = %q", got)
	}
}

type otherSession struct{}

func (otherSession) Close() error { return nil }

func TestAsSessionRejectsForeignSessions(t *testing.T) {
	if _, err := asSession(otherSession{}); err == nil {
		t.Error("asSession(foreign) = nil error, want error")
	}
	if _, err := asSession((*Session)(nil)); err == nil {
		t.Error("asSession(nil) = nil error, want error")
	}
}

func TestWalletKeyImportSupport(t *testing.T) {
	mm, _ := NewWallet("metamask", "")
	if !mm.CanImportKey() {
		t.Error("metamask CanImportKey() = false, want true")
	}
	cb, _ := NewWallet("coinbase", "")
	if cb.CanImportKey() {
		t.Error("coinbase CanImportKey() = true, want false")
	}
	// The refusal happens before any browser work, so no session is needed.
	if err := cb.ImportKey(context.Background(), nil, "0xabc"); err == nil {
		t.Error("coinbase ImportKey() = nil error, want error")
	}
}

func TestImportOutcomeScriptWatchesFormAndHome(t *testing.T) {
	w, _ := NewWallet("metamask", "")
	script := w.importOutcomeScript()
	for _, want := range []string{jsString("#private-key-box"), jsString(w.ready), jsString(keyImported), jsString(keyDuplicate)} {
		if !strings.Contains(script, want) {
			t.Errorf("importOutcomeScript missing %s", want)
		}
	}
}

func TestCloseStrayTabsReportsEveryFailure(t *testing.T) {
	infos := []*target.Info{
		{TargetID: "main", Type: "page", URL: "https://opensea.io/"},
		{TargetID: "bg", Type: "background_page", URL: "chrome-extension://x/background.html"},
		{TargetID: "a", Type: "page", URL: "https://a.example/"},
		{TargetID: "b", Type: "page", URL: "https://b.example/"},
		{TargetID: "c", Type: "page", URL: "https://c.example/"},
	}
	var closed []target.ID
	err := closeStrayTabs(infos, "main", func(info *target.Info) error {
		closed = append(closed, info.TargetID)
		if info.TargetID == "a" {
			return errors.New("target detached")
		}
		return nil
	})
	if len(closed) != 3 {
		t.Errorf("closed %v, want a, b and c", closed)
	}
	if err == nil || !strings.Contains(err.Error(), "https://a.example/") || !strings.Contains(err.Error(), "target detached") {
		t.Errorf("closeStrayTabs() error = %v, want the failed tab", err)
	}

	if err := closeStrayTabs(infos, "main", func(*target.Info) error { return nil }); err != nil {
		t.Errorf("closeStrayTabs() with clean closes = %v, want nil", err)
	}
}
