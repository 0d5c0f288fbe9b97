package banner

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"chatdesk/pkg/config"
)

const banner = `
  ___ _         _      _           _
 / __| |_  __ _| |_ __| |___ ___ | |__
| (__| ' \/ _' |  _/ _' / -_|_-< | / /
 \___|_||_\__,_|\__\__,_\___/__/ |_\_\
`

// Print writes the startup banner and a production readiness checklist.
func Print(w io.Writer, eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config
	if cfg == nil {
		return
	}
	src := eff.Source
	if src == "" {
		src = "defaults"
	}

	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	fmt.Fprintf(w, "Listen:   %s\n", eff.Addr)
	switch cfg.Storage.Driver {
	case "pebble":
		fmt.Fprintf(w, "Storage:  pebble (%s)\n", cfg.Storage.Path)
	default:
		fmt.Fprintf(w, "Storage:  %s\n", cfg.Storage.Driver)
	}
	if version != "" {
		fmt.Fprintf(w, "Version:  %s\n", version)
	}
	fmt.Fprintf(w, "Config:   %s\n", src)

	fmt.Fprintln(w, "\n== Production? =================================================")
	if n := len(cfg.Security.SigningKeys); n > 1 {
		fmt.Fprintf(w, "- Signing keys: OK (%d, rotation active)\n", n)
	} else if n == 1 {
		fmt.Fprintln(w, "- Signing keys: OK (1)")
	} else {
		fmt.Fprintln(w, "- Signing keys: MISSING (required to verify bearer tokens)")
	}
	if n := len(cfg.Security.APIKeys.Backend); n > 0 {
		fmt.Fprintf(w, "- Backend API keys: OK (%d)\n", n)
	} else {
		fmt.Fprintln(w, "- Backend API keys: MISSING (token issuance disabled)")
	}
	fmt.Fprintf(w, "- Admin identity: %s\n", cfg.Security.AdminUserID)
	fmt.Fprintf(w, "- Rate limit: %.0f rps, burst %s\n", cfg.Security.RateLimit.RPS, humanize.Comma(int64(cfg.Security.RateLimit.Burst)))
	fmt.Fprintf(w, "- Max message size: %s\n", cfg.Chat.MaxMessageBytes)
	fmt.Fprintf(w, "- Summaries: %s\n", cfg.Chat.SummarySource)
	if cfg.Chat.LegacyVisibility {
		fmt.Fprintln(w, "- Visibility: LEGACY (users see admin messages addressed to others)")
	} else {
		fmt.Fprintln(w, "- Visibility: per-conversation")
	}
	if cfg.Reconcile.Enabled {
		fmt.Fprintf(w, "- Reconcile: enabled (cron=%s)\n", cfg.Reconcile.Cron)
	} else {
		fmt.Fprintln(w, "- Reconcile: disabled")
	}
	fmt.Fprintln(w)
}
