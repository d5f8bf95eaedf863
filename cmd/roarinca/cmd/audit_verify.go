package cmd

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// The verifier re-implements the chain math instead of importing the api
// package, so auditors can rebuild this command without the server's
// dependency tree and the server never vouches for its own trail.

// auditExport mirrors api.AuditExportResponse.
type auditExport struct {
	ExportedAt string             `json:"exported_at"`
	Entries    []auditExportEntry `json:"entries"`
}

// auditExportEntry mirrors api.AuditEntryResponse.
type auditExportEntry struct {
	ID         string `json:"id"`
	Action     string `json:"action"`
	Actor      string `json:"actor"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	Detail     string `json:"detail"`
	RemoteAddr string `json:"remote_addr"`
	PrevHash   string `json:"prev_hash"`
	CreatedAt  string `json:"created_at"`
}

// verifyResult is the machine-readable outcome of one verification run.
type verifyResult struct {
	File       string        `json:"file"`
	ExportedAt string        `json:"exported_at,omitempty"`
	EntryCount int           `json:"entry_count"`
	Valid      bool          `json:"valid"`
	Checks     []checkResult `json:"checks"`
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

const (
	statusPass = "pass"
	statusFail = "fail"
	statusWarn = "warn"
)

// verifyGenesisHash anchors the first entry of every trail.
const verifyGenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// verifyChainHash reproduces the server's link computation: SHA-256 over
// the entry ID, the predecessor hash and the creation timestamp.
func verifyChainHash(entryID, prevHash, createdAt string) string {
	sum := sha256.Sum256([]byte(entryID + prevHash + createdAt))
	return hex.EncodeToString(sum[:])
}

func pass(name, detail string) checkResult {
	return checkResult{Name: name, Status: statusPass, Detail: detail}
}

func failed(name, detail string) checkResult {
	return checkResult{Name: name, Status: statusFail, Detail: detail}
}

func warn(name, detail string) checkResult {
	return checkResult{Name: name, Status: statusWarn, Detail: detail}
}

// Each check sees the full entry list and reports one result. A fail
// condemns the trail; a warn flags something worth a second look.
var chainChecks = []func([]auditExportEntry) checkResult{
	checkGenesisAnchor,
	checkChainContinuity,
	checkDuplicateIDs,
	checkTimestampOrder,
	checkRequiredFields,
}

func verifyAuditChain(export auditExport) verifyResult {
	result := verifyResult{
		ExportedAt: export.ExportedAt,
		EntryCount: len(export.Entries),
		Valid:      true,
	}

	if len(export.Entries) == 0 {
		result.Checks = []checkResult{pass("empty_chain", "trail is empty")}
		return result
	}

	for _, check := range chainChecks {
		c := check(export.Entries)
		if c.Status == statusFail {
			result.Valid = false
		}
		result.Checks = append(result.Checks, c)
	}
	return result
}

func checkGenesisAnchor(entries []auditExportEntry) checkResult {
	if got := entries[0].PrevHash; got != verifyGenesisHash {
		return failed("genesis_anchor",
			fmt.Sprintf("first entry carries prev_hash=%s instead of the genesis anchor", got))
	}
	return pass("genesis_anchor", "")
}

func checkChainContinuity(entries []auditExportEntry) checkResult {
	for i := 1; i < len(entries); i++ {
		prev := entries[i-1]
		want := verifyChainHash(prev.ID, prev.PrevHash, prev.CreatedAt)
		if entries[i].PrevHash == want {
			continue
		}
		return failed("chain_continuity", fmt.Sprintf(
			"entry %d (id=%s) carries prev_hash=%s, recomputing entry %d gives %s",
			i, entries[i].ID, entries[i].PrevHash, i-1, want))
	}
	return pass("chain_continuity", fmt.Sprintf("%d entries, every link matches", len(entries)))
}

func checkDuplicateIDs(entries []auditExportEntry) checkResult {
	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		if first, dup := seen[e.ID]; dup {
			return failed("no_duplicate_ids",
				fmt.Sprintf("entries %d and %d share id=%s", first, i, e.ID))
		}
		seen[e.ID] = i
	}
	return pass("no_duplicate_ids", "")
}

// checkTimestampOrder warns instead of failing: hosts with stepping clocks
// produce out-of-order timestamps on otherwise intact trails.
func checkTimestampOrder(entries []auditExportEntry) checkResult {
	var (
		last     time.Time
		lastIdx  int
		unparsed int
	)
	for i, e := range entries {
		ts, err := parseTimestamp(e.CreatedAt)
		if err != nil {
			unparsed++
			continue
		}
		if !last.IsZero() && ts.Before(last) {
			return warn("monotonic_timestamps", fmt.Sprintf(
				"entry %d (created_at=%s) predates entry %d", i, e.CreatedAt, lastIdx))
		}
		last, lastIdx = ts, i
	}
	if unparsed > 0 {
		return warn("monotonic_timestamps",
			fmt.Sprintf("%d timestamp(s) could not be parsed", unparsed))
	}
	return pass("monotonic_timestamps", "")
}

func checkRequiredFields(entries []auditExportEntry) checkResult {
	for i, e := range entries {
		switch {
		case e.ID == "":
			return failed("required_fields", fmt.Sprintf("entry %d has no id", i))
		case e.Action == "":
			return failed("required_fields", fmt.Sprintf("entry %d has no action", i))
		case e.CreatedAt == "":
			return failed("required_fields", fmt.Sprintf("entry %d has no created_at", i))
		}
	}
	return pass("required_fields", "")
}

// parseTimestamp mirrors the server's created_at parsing.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, s)
}

func printReport(w io.Writer, result verifyResult) {
	fmt.Fprintf(w, "Audit trail: %s\n", result.File)
	if result.ExportedAt != "" {
		fmt.Fprintf(w, "Exported:    %s\n", result.ExportedAt)
	}
	fmt.Fprintf(w, "Entries:     %d\n\n", result.EntryCount)

	failures, warnings := 0, 0
	for _, c := range result.Checks {
		switch c.Status {
		case statusFail:
			failures++
		case statusWarn:
			warnings++
		}
		if c.Detail != "" {
			fmt.Fprintf(w, "[%s] %s: %s\n", strings.ToUpper(c.Status), c.Name, c.Detail)
		} else {
			fmt.Fprintf(w, "[%s] %s\n", strings.ToUpper(c.Status), c.Name)
		}
	}

	fmt.Fprintln(w)
	if result.Valid {
		fmt.Fprintln(w, "Result: VALID")
		return
	}
	fmt.Fprintf(w, "Result: INVALID (%d error(s), %d warning(s))\n", failures, warnings)
}

var verifyJSONOutput bool

var verifyCmd = &cobra.Command{
	Use:   "verify [file]",
	Short: "Verify an exported audit trail offline",
	Long: `Checks a JSON export from GET /api/v1/audit/export without talking to the
server: hash chain continuity from the genesis anchor, duplicate entry IDs,
timestamp ordering and required fields.

Exits non-zero when the trail does not verify.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("cannot read export: %w", err)
		}
		var export auditExport
		if err := json.Unmarshal(data, &export); err != nil {
			return fmt.Errorf("export is not valid JSON: %w", err)
		}

		result := verifyAuditChain(export)
		result.File = args[0]

		if verifyJSONOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else {
			printReport(os.Stdout, result)
		}

		if !result.Valid {
			return errors.New("audit trail failed verification")
		}
		return nil
	},
}

func init() {
	auditCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyJSONOutput, "json", false, "Output as JSON")
}
