package out

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/moonapp-tools/mooncoin-cli/internal/model"
)

var (
	headerColor   = color.New(color.FgCyan, color.Bold)
	okColor       = color.New(color.FgGreen)
	warnColor     = color.New(color.FgYellow)
	failColor     = color.New(color.FgRed)
	mutedColor    = color.New(color.FgHiBlack)
	highlightText = color.New(color.FgMagenta, color.Bold)
)

// Table renders aligned columns. Colors follow fatih/color's NoColor switch.
func Table(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = headerColor.Sprint(h)
	}
	if _, err := fmt.Fprintln(tw, strings.Join(cells, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func AccountsTable(w io.Writer, accounts []model.AccountSummary) error {
	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		if a.Error != "" {
			rows = append(rows, []string{strconv.Itoa(a.Account), mutedColor.Sprint("-"), "-", "-", failColor.Sprint(a.Error)})
			continue
		}
		wallet := a.Wallet
		if wallet == "" {
			wallet = mutedColor.Sprint("not linked")
		}
		rows = append(rows, []string{
			strconv.Itoa(a.Account),
			highlightText.Sprint(a.Username),
			strconv.FormatFloat(a.Balance, 'f', -1, 64),
			strconv.FormatInt(a.Spins, 10),
			wallet,
		})
	}
	return Table(w, []string{"#", "USERNAME", "BALANCE", "SPINS", "WALLET"}, rows)
}

func OutcomesTable(w io.Writer, outcomes []model.Outcome) error {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{
			strconv.Itoa(o.Account),
			o.Username,
			o.Action,
			statusText(o.Status),
			o.Detail,
		})
	}
	return Table(w, []string{"#", "USERNAME", "ACTION", "STATUS", "DETAIL"}, rows)
}

func JournalTable(w io.Writer, entries []model.JournalEntry) error {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			strconv.Itoa(e.Account),
			e.Action,
			statusText(e.Status),
			e.Detail,
		})
	}
	return Table(w, []string{"TIME", "#", "ACTION", "STATUS", "DETAIL"}, rows)
}

func statusText(s model.OutcomeStatus) string {
	switch s {
	case model.OutcomeOK:
		return okColor.Sprint(string(s))
	case model.OutcomeNotAvailable, model.OutcomeSkipped:
		return warnColor.Sprint(string(s))
	case model.OutcomeFailed:
		return failColor.Sprint(string(s))
	default:
		return string(s)
	}
}
