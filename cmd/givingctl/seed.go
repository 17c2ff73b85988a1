package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/punchamoorthee/givingops/internal/domain"
	"github.com/punchamoorthee/givingops/internal/store"
	"github.com/spf13/cobra"
)

var demoNonprofits = []domain.Nonprofit{
	{Name: "Clean Water Fund", Description: "Wells and filtration for rural communities.", Website: "https://cleanwater.example.org"},
	{Name: "City Food Bank", Description: "Weekly groceries for families in need.", Website: "https://foodbank.example.org"},
	{Name: "Open Library Project", Description: "Free books and reading programs for children.", Website: "https://openlibrary.example.org"},
	{Name: "Harbor Animal Rescue", Description: "Shelter, care and adoption for stray animals.", Website: "https://harborrescue.example.org"},
	{Name: "Green Canopy", Description: "Urban tree planting and maintenance.", Website: "https://greencanopy.example.org"},
}

func seedCmd() *cobra.Command {
	var (
		extra     int
		minAmount int64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo nonprofits and a widget token",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, s, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			return seed(cmd.Context(), s, cmd.OutOrStdout(), extra, minAmount)
		},
	}

	cmd.Flags().IntVar(&extra, "extra", 0, "additional generated nonprofits for load testing")
	cmd.Flags().Int64Var(&minAmount, "widget-min-cents", 500, "minimum amount on the demo widget token")
	return cmd
}

func seed(ctx context.Context, s *store.Store, out io.Writer, extra int, minAmount int64) error {
	count, err := s.CountNonprofits(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		fmt.Fprintf(out, "database already has %d nonprofits, skipping\n", count)
		return nil
	}

	nonprofits := demoRows(extra)
	copied, err := s.SeedNonprofits(ctx, nonprofits)
	if err != nil {
		return fmt.Errorf("bulk insert failed: %w", err)
	}
	fmt.Fprintf(out, "seeded %d nonprofits\n", copied)

	token, err := newWidgetToken()
	if err != nil {
		return err
	}
	w := &domain.WidgetToken{Token: token, NonprofitID: nonprofits[0].ID, MinAmountCents: minAmount, IsActive: true}
	if err := s.CreateWidgetToken(ctx, w); err != nil {
		return err
	}
	fmt.Fprintf(out, "widget token for %q: %s\n", nonprofits[0].Name, token)
	return nil
}

func demoRows(extra int) []domain.Nonprofit {
	rows := make([]domain.Nonprofit, 0, len(demoNonprofits)+extra)
	for _, n := range demoNonprofits {
		n.Status = domain.NonprofitApproved
		rows = append(rows, n)
	}
	for i := 0; i < extra; i++ {
		rows = append(rows, domain.Nonprofit{
			Name:        fmt.Sprintf("Generated Nonprofit %04d", i+1),
			Description: "Synthetic directory entry.",
			Status:      domain.NonprofitApproved,
		})
	}
	return rows
}

func newWidgetToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "wt_" + hex.EncodeToString(b), nil
}
