package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/tokenstream/internal/interest"
	"github.com/gyaneshwarpardhi/tokenstream/internal/usdpeg"
)

// NewInterestCommand creates the interest command.
func NewInterestCommand(rootOpts *RootOptions) *cobra.Command {
	var strategy uint32
	cmd := &cobra.Command{
		Use:   "interest <total>",
		Short: "Split vault interest by strategy mask",
		Long: `Split an interest amount between sender (1), receiver (2) and protocol (4).

The strategy is the sum of the parties that share; 0 pays the receiver.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("total: %w", err)
			}
			if err := interest.ValidateStrategy(strategy); err != nil {
				return err
			}
			split := interest.Distribute(total, strategy)
			return output(cmd.OutOrStdout(), rootOpts, split, func(w io.Writer) {
				fmt.Fprintln(w, split)
			})
		},
	}
	cmd.Flags().Uint32Var(&strategy, "strategy", 0, "interest strategy mask (0-7)")
	return cmd
}

// USDQuote is a USD to token conversion at a price.
type USDQuote struct {
	USD    string `json:"usd"`
	Price  string `json:"price"`
	Tokens int64  `json:"tokens"`
}

// NewUSDCommand creates the usd command.
func NewUSDCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usd <usd-amount> <price>",
		Short: "Convert a USD amount to tokens at a price",
		Long:  "Convert a decimal USD amount to token units at a decimal USD-per-token price, both with 7 decimals.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			usd, err := usdpeg.Parse(args[0])
			if err != nil {
				return err
			}
			price, err := usdpeg.Parse(args[1])
			if err != nil {
				return err
			}
			tokens, err := usdpeg.TokensForUSD(usd, price)
			if err != nil {
				return err
			}
			q := USDQuote{USD: usdpeg.Format(usd), Price: usdpeg.Format(price), Tokens: tokens}
			return output(cmd.OutOrStdout(), rootOpts, q, func(w io.Writer) {
				fmt.Fprintf(w, "%s USD at %s = %d tokens (%s)\n", q.USD, q.Price, q.Tokens, usdpeg.Format(tokens))
			})
		},
	}
	return cmd
}
