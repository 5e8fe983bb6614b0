package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/model"
)

var (
	suppressType    string
	suppressValue   string
	suppressReason  string
	suppressExpires string
	suppressJSON    bool
)

var suppressCmd = &cobra.Command{
	Use:   "suppress",
	Short: "Manage the outreach suppression list",
}

var suppressAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a suppression entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := newSuppression(suppressType, suppressValue, suppressReason, suppressExpires)
		if err != nil {
			return err
		}
		if err := cfg.Validate("admin"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.AddSuppression(ctx, s); err != nil {
			return err
		}
		zap.L().Info("suppression added", zap.String("type", string(s.Kind)), zap.String("value", s.Value))
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Suppressed %s %s", s.Kind, s.Value)))
		return nil
	},
}

var suppressListCmd = &cobra.Command{
	Use:   "list",
	Short: "List suppression entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("admin"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		list, err := st.ListSuppressions(ctx)
		if err != nil {
			return err
		}
		if suppressJSON {
			return writeJSON(cmd.OutOrStdout(), list)
		}
		return printSuppressions(cmd.OutOrStdout(), list)
	},
}

var suppressImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import suppressions from a CSV or JSON file",
	Long: `Import suppressions from a file.

CSV files need a header row with the columns type and value; reason and
expires_at (RFC 3339 or YYYY-MM-DD) are optional. JSON files hold an array of
objects with the same keys.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open suppression file")
		}
		defer f.Close() //nolint:errcheck

		list, err := parseSuppressions(f, strings.ToLower(filepath.Ext(args[0])))
		if err != nil {
			return err
		}

		if err := cfg.Validate("admin"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ImportSuppressions(ctx, list)
		if err != nil {
			return err
		}
		zap.L().Info("suppressions imported", zap.Int64("count", n), zap.String("file", args[0]))
		fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(fmt.Sprintf("Imported %d suppressions", n)))
		return nil
	},
}

func init() {
	suppressAddCmd.Flags().StringVar(&suppressType, "type", "", "email, domain or company")
	suppressAddCmd.Flags().StringVar(&suppressValue, "value", "", "value to suppress")
	suppressAddCmd.Flags().StringVar(&suppressReason, "reason", "", "why outreach is suppressed")
	suppressAddCmd.Flags().StringVar(&suppressExpires, "expires", "", "expiry date (RFC 3339 or YYYY-MM-DD)")
	_ = suppressAddCmd.MarkFlagRequired("type")
	_ = suppressAddCmd.MarkFlagRequired("value")
	suppressListCmd.Flags().BoolVar(&suppressJSON, "json", false, "print JSON")

	suppressCmd.AddCommand(suppressAddCmd, suppressListCmd, suppressImportCmd)
	rootCmd.AddCommand(suppressCmd)
}

// newSuppression validates raw fields into a Suppression.
func newSuppression(kind, value, reason, expires string) (model.Suppression, error) {
	s := model.Suppression{
		Kind:   model.SuppressionKind(strings.ToLower(strings.TrimSpace(kind))),
		Value:  strings.TrimSpace(value),
		Reason: strings.TrimSpace(reason),
	}
	if !s.Kind.Valid() {
		return s, eris.Errorf("invalid suppression type %q", kind)
	}
	if s.Value == "" {
		return s, eris.New("suppression value is required")
	}
	if expires = strings.TrimSpace(expires); expires != "" {
		t, err := parseExpiry(expires)
		if err != nil {
			return s, err
		}
		s.ExpiresAt = &t
	}
	return s, nil
}

func parseExpiry(v string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, eris.Errorf("invalid expiry %q", v)
	}
	return t.UTC(), nil
}

// parseSuppressions reads suppressions in the format named by ext (".csv" or
// ".json"). Every entry is validated; the first bad one fails the import.
func parseSuppressions(r io.Reader, ext string) ([]model.Suppression, error) {
	type raw struct {
		Type      string `json:"type"`
		Value     string `json:"value"`
		Reason    string `json:"reason"`
		ExpiresAt string `json:"expires_at"`
	}

	var rows []raw
	switch ext {
	case ".json":
		if err := json.NewDecoder(r).Decode(&rows); err != nil {
			return nil, eris.Wrap(err, "decode suppression json")
		}
	case ".csv":
		cr := csv.NewReader(r)
		cr.TrimLeadingSpace = true
		cr.FieldsPerRecord = -1
		records, err := cr.ReadAll()
		if err != nil {
			return nil, eris.Wrap(err, "read suppression csv")
		}
		if len(records) == 0 {
			return nil, nil
		}
		cols := map[string]int{}
		for i, h := range records[0] {
			cols[strings.ToLower(strings.TrimSpace(h))] = i
		}
		for _, required := range []string{"type", "value"} {
			if _, ok := cols[required]; !ok {
				return nil, eris.Errorf("suppression csv: missing %q column", required)
			}
		}
		get := func(rec []string, col string) string {
			i, ok := cols[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		for _, rec := range records[1:] {
			rows = append(rows, raw{
				Type:      get(rec, "type"),
				Value:     get(rec, "value"),
				Reason:    get(rec, "reason"),
				ExpiresAt: get(rec, "expires_at"),
			})
		}
	default:
		return nil, eris.Errorf("unsupported suppression file type %q", ext)
	}

	list := make([]model.Suppression, 0, len(rows))
	for i, row := range rows {
		s, err := newSuppression(row.Type, row.Value, row.Reason, row.ExpiresAt)
		if err != nil {
			return nil, eris.Wrapf(err, "entry %d", i+1)
		}
		list = append(list, s)
	}
	return list, nil
}

func printSuppressions(w io.Writer, list []model.Suppression) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, dimStyle.Render("No suppressions"))
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tVALUE\tREASON\tEXPIRES")
	for _, s := range list {
		expires := "never"
		if s.ExpiresAt != nil {
			expires = s.ExpiresAt.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Kind, s.Value, s.Reason, expires)
	}
	return tw.Flush()
}
