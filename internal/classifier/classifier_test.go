package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"phishfuse/internal/core/domain"
	"phishfuse/internal/platform/httpclient"
	"phishfuse/internal/platform/logx"
	"phishfuse/internal/testutil"
)

const testModel = `
feature_version: v2
intercept: -2
weights:
  risk_keywords: 2
  brand_outside_reg: 2
  prefix_suffix: 1
`

func TestExtract(t *testing.T) {
	t.Run("brand in subdomain", func(t *testing.T) {
		f := Extract("https://paypal.com.secure-login.xyz/verify/account.php?x=1")

		testutil.AssertEqual(t, f["nb_subdomains"], 2.0, "subdomains left of registrable domain")
		testutil.AssertEqual(t, f["brand_outside_reg"], 1.0, "brand outside registrable")
		testutil.AssertEqual(t, f["prefix_suffix"], 1.0, "hyphen in host")
		testutil.AssertEqual(t, f["path_extension"], 1.0, "php extension")
		testutil.AssertEqual(t, f["risk_keywords"], 1.0, "risk keyword")
		testutil.AssertEqual(t, f["path_segments"], 2.0, "segments")
		testutil.AssertEqual(t, f["shortest_word_path"], 6.0, "shortest segment")
		testutil.AssertEqual(t, f["longest_word_path"], 11.0, "longest segment")
		testutil.AssertEqual(t, f["avg_word_path"], 8.5, "average segment")
		testutil.AssertEqual(t, f["nb_qm"], 1.0, "query marks")
	})

	t.Run("ip host with port", func(t *testing.T) {
		f := Extract("http://192.168.1.10:8080/login")
		testutil.AssertEqual(t, f["ip_in_host"], 1.0, "ip host")
		testutil.AssertEqual(t, f["port"], 1.0, "explicit port")
		testutil.AssertEqual(t, f["nb_subdomains"], 0.0, "no subdomains for ip")
	})

	t.Run("plain domain", func(t *testing.T) {
		f := Extract("https://example.com/")
		testutil.AssertEqual(t, f["nb_subdomains"], 0.0, "subdomains")
		testutil.AssertEqual(t, f["risk_keywords"], 0.0, "risk keywords")
		testutil.AssertEqual(t, f["brand_outside_reg"], 0.0, "brand")
		testutil.AssertEqual(t, f["path_segments"], 0.0, "segments")
	})

	t.Run("unparseable url", func(t *testing.T) {
		f := Extract("http://[::1")
		testutil.AssertEqual(t, f["host_length"], 0.0, "no host")
		testutil.AssertTrue(t, f["url_length"] > 0, "length still counted")
	})

	t.Run("stable feature set", func(t *testing.T) {
		a := Extract("https://a.example.com/x").Names()
		b := Extract("nonsense").Names()
		testutil.AssertDeepEqual(t, a, b, "same names for any input")
	})
}

func TestRegistrableDomain(t *testing.T) {
	tests := map[string]string{
		"login.bank.co.uk":  "bank.co.uk",
		"WWW.Example.COM.": "example.com",
		"localhost":         "localhost",
		"secure.github.io":  "secure.github.io",
	}
	for host, want := range tests {
		t.Run(host, func(t *testing.T) {
			testutil.AssertEqual(t, RegistrableDomain(host), want, "registrable domain")
		})
	}
}

func TestParseModel(t *testing.T) {
	m, err := ParseModel([]byte(testModel))
	testutil.AssertNoError(t, err, "parse")
	testutil.AssertEqual(t, m.FeatureVersion(), FeatureVersion, "version")

	phishy := m.Probability(Extract("https://paypal.com.secure-login.xyz/verify"))
	clean := m.Probability(Extract("https://example.com/"))
	testutil.AssertTrue(t, math.Abs(phishy-1/(1+math.Exp(-3))) < 1e-9, "phishy probability")
	testutil.AssertTrue(t, math.Abs(clean-1/(1+math.Exp(2))) < 1e-9, "clean probability")

	errorCases := map[string]struct {
		doc  string
		want error
	}{
		"old contract": {"feature_version: v1\nweights: {nb_dots: 1}\n", domain.ErrFeatureVersion},
		"no weights":   {"feature_version: v2\n", domain.ErrClassifierNotLoaded},
	}
	for name, tc := range errorCases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseModel([]byte(tc.doc))
			testutil.AssertErrorIs(t, err, tc.want, name)
		})
	}

	t.Run("unknown feature", func(t *testing.T) {
		_, err := ParseModel([]byte("feature_version: v2\nweights: {login_form: 1}\n"))
		testutil.AssertError(t, err, "unknown feature")
	})
}

func TestLoadModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.yaml")
	testutil.AssertNoError(t, os.WriteFile(path, []byte(testModel), 0o600), "write")

	m, err := LoadModel(path)
	testutil.AssertNoError(t, err, "load")

	p, err := m.Assess(context.Background(), "https://example.com/")
	testutil.AssertNoError(t, err, "assess")
	testutil.AssertTrue(t, p < 0.5, "clean url scores low")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Assess(ctx, "https://example.com/")
	testutil.AssertErrorIs(t, err, context.Canceled, "cancelled")

	_, err = LoadModel(filepath.Join(t.TempDir(), "none.yaml"))
	testutil.AssertError(t, err, "missing file")
}

func TestLoadModel_Bundled(t *testing.T) {
	m, err := LoadModel("")
	testutil.AssertNoError(t, err, "bundled model")
	testutil.AssertEqual(t, m.FeatureVersion(), FeatureVersion, "version")

	clean := m.Probability(Extract("https://docs.example.org/guide"))
	phish := m.Probability(Extract("http://192.168.2.1/paypal/login.php"))
	testutil.AssertTrue(t, clean < 0.1, "plain documentation url")
	testutil.AssertTrue(t, phish > 0.5, "ip host with login page")
}

func TestHTTPClassifier(t *testing.T) {
	newServer := func(status int, body string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req scoreRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode request: %v", err)
			}
			testutil.AssertEqual(t, req.FeatureVersion, FeatureVersion, "feature version sent")
			testutil.AssertEqual(t, req.URL, "https://secure-login.badsite.com/verify", "url sent")
			testutil.AssertTrue(t, len(req.Features) > 10, "features sent")
			w.WriteHeader(status)
			w.Write([]byte(body))
		}))
	}
	client := httpclient.New(httpclient.Config{}, logx.Discard())

	t.Run("probability", func(t *testing.T) {
		srv := newServer(http.StatusOK, `{"probability": 0.8}`)
		defer srv.Close()

		p, err := NewHTTPClassifier(srv.URL, client).Assess(context.Background(), "https://secure-login.badsite.com/verify")
		testutil.AssertNoError(t, err, "assess")
		testutil.AssertEqual(t, p, 0.8, "probability")
	})

	errorCases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"out of range", http.StatusOK, `{"probability": 1.5}`, domain.ErrProbabilityRange},
		{"missing field", http.StatusOK, `{}`, nil},
		{"server error", http.StatusInternalServerError, `oops`, nil},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(tc.status, tc.body)
			defer srv.Close()

			_, err := NewHTTPClassifier(srv.URL, client).Assess(context.Background(), "https://secure-login.badsite.com/verify")
			testutil.AssertError(t, err, tc.name)
			if tc.want != nil {
				testutil.AssertErrorIs(t, err, tc.want, tc.name)
			}
		})
	}
}

type fakeClassifier struct {
	version string
	probs   map[string]float64
	errs    map[string]error
}

func (f *fakeClassifier) Assess(_ context.Context, url string) (float64, error) {
	if err := f.errs[url]; err != nil {
		return 0, err
	}
	return f.probs[url], nil
}

func (f *fakeClassifier) FeatureVersion() string { return f.version }

func TestAssessor(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	fc := &fakeClassifier{
		version: FeatureVersion,
		probs:   map[string]float64{"https://a.com": 0.3, "https://b.com": 0.8, "https://c.com": 0.1},
		errs:    map[string]error{"https://down.com": errors.New("connection refused")},
	}
	a, err := NewAssessor(fc, DefaultThreshold, clock, logx.Discard())
	testutil.AssertNoError(t, err, "new assessor")

	t.Run("max probability wins", func(t *testing.T) {
		got, err := a.Assess(context.Background(), []string{"https://a.com", "https://b.com", "https://c.com"})
		testutil.AssertNoError(t, err, "assess")
		testutil.AssertEqual(t, got.Probability, 0.8, "probability")
		testutil.AssertEqual(t, got.Label, 1, "label")
		testutil.AssertEqual(t, got.URL, "https://b.com", "url")
		testutil.AssertEqual(t, got.Threshold, DefaultThreshold, "threshold")
		testutil.AssertEqual(t, got.FeatureVersion, FeatureVersion, "feature version")
		testutil.AssertEqual(t, got.ComputedAt, clock.Now(), "computed at")
	})

	t.Run("failed urls are skipped", func(t *testing.T) {
		got, err := a.Assess(context.Background(), []string{"https://down.com", "https://a.com"})
		testutil.AssertNoError(t, err, "assess")
		testutil.AssertEqual(t, got.Label, 0, "below threshold")
	})

	t.Run("all failed", func(t *testing.T) {
		_, err := a.Assess(context.Background(), []string{"https://down.com"})
		testutil.AssertError(t, err, "all failed")
	})

	t.Run("no urls", func(t *testing.T) {
		got, err := a.Assess(context.Background(), nil)
		testutil.AssertNoError(t, err, "no urls")
		testutil.AssertTrue(t, got == nil, "no assessment")
	})

	t.Run("out of range probability is rejected", func(t *testing.T) {
		bad := &fakeClassifier{version: FeatureVersion, probs: map[string]float64{"https://x.com": math.NaN()}}
		b, err := NewAssessor(bad, DefaultThreshold, clock, logx.Discard())
		testutil.AssertNoError(t, err, "new assessor")
		_, err = b.Assess(context.Background(), []string{"https://x.com"})
		testutil.AssertErrorIs(t, err, domain.ErrProbabilityRange, "nan")
	})
}

func TestNewAssessor_Validation(t *testing.T) {
	clock := clockwork.NewFakeClock()

	_, err := NewAssessor(&fakeClassifier{version: "v1"}, DefaultThreshold, clock, logx.Discard())
	testutil.AssertErrorIs(t, err, domain.ErrFeatureVersion, "version mismatch")

	_, err = NewAssessor(&fakeClassifier{version: FeatureVersion}, 1.5, clock, logx.Discard())
	testutil.AssertErrorIs(t, err, domain.ErrInvalidConfig, "threshold")

	_, err = NewAssessor(nil, DefaultThreshold, clock, logx.Discard())
	testutil.AssertErrorIs(t, err, domain.ErrClassifierNotLoaded, "nil classifier")

	a, err := NewAssessor(&fakeClassifier{version: FeatureVersion}, 0.71, clock, logx.Discard())
	testutil.AssertNoError(t, err, "two-stage threshold")
	testutil.AssertEqual(t, a.Threshold(), 0.71, "threshold")
}
