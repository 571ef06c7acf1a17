package forge

import (
	"errors"
	"testing"
)

func TestParseRepoURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    Project
		wantErr error
	}{
		{
			name: "github https",
			url:  "https://github.com/acme/demo",
			want: Project{Owner: "acme", Repo: "demo", Provider: "github.com"},
		},
		{
			name: "gitlab with .git suffix",
			url:  "https://gitlab.com/acme/demo.git",
			want: Project{Owner: "acme", Repo: "demo", Provider: "gitlab.com"},
		},
		{
			name: "trailing slash",
			url:  "https://github.com/acme/demo/",
			want: Project{Owner: "acme", Repo: "demo", Provider: "github.com"},
		},
		{
			name: "extra path segments keep owner/repo",
			url:  "https://github.com/acme/demo/tree/main",
			want: Project{Owner: "acme", Repo: "demo", Provider: "github.com"},
		},
		{
			name:    "unrecognized provider",
			url:     "https://bitbucket.org/acme/demo",
			wantErr: ErrUnrecognizedProvider,
		},
		{
			name:    "missing repo segment",
			url:     "https://github.com/acme",
			wantErr: errAny,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRepoURL(tt.url)
			if tt.wantErr != nil {
				if err == nil {
					t.Fatalf("ParseRepoURL(%q) succeeded, want error", tt.url)
				}
				if tt.wantErr != errAny && !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseRepoURL(%q) error = %v, want %v", tt.url, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRepoURL(%q) failed: %v", tt.url, err)
			}
			if got != tt.want {
				t.Errorf("ParseRepoURL(%q) = %+v, want %+v", tt.url, got, tt.want)
			}
		})
	}
}

// errAny marks table rows where any error is acceptable.
var errAny = errors.New("any error")

func TestProjectAbbrev(t *testing.T) {
	if got := (Project{Provider: "github.com"}).Abbrev(); got != "gh" {
		t.Errorf("github abbrev = %q, want gh", got)
	}
	if got := (Project{Provider: "gitlab.com"}).Abbrev(); got != "gl" {
		t.Errorf("gitlab abbrev = %q, want gl", got)
	}
}

func TestProjectLockKey(t *testing.T) {
	p := Project{Owner: "acme", Repo: "demo", Provider: "github.com"}
	key := p.LockKey()
	if key.Provider != "github.com" || key.Owner != "acme" || key.Repo != "demo" {
		t.Errorf("LockKey = %+v", key)
	}
}
