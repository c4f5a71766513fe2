package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/noah-isme/maison-parfum/internal/catalog"
	"github.com/noah-isme/maison-parfum/internal/db"
	"github.com/noah-isme/maison-parfum/internal/pricing"
	"github.com/noah-isme/maison-parfum/internal/promo"
)

// PromoValidator is the part of the promo service the CLI drives.
type PromoValidator interface {
	Validate(ctx context.Context, code string, subtotal pricing.Money, productIDs []string) (promo.Outcome, error)
}

// deps are the side-effecting collaborators of the CLI, swapped in tests.
type deps struct {
	migrate   func(databaseURL string, dir db.Direction) (db.MigrationStatus, error)
	openPromo func(ctx context.Context, databaseURL, currency string, logger zerolog.Logger) (PromoValidator, func(), error)
}

func defaultDeps() deps {
	return deps{migrate: db.Migrate, openPromo: openPromoService}
}

func openPromoService(ctx context.Context, databaseURL, currency string, logger zerolog.Logger) (PromoValidator, func(), error) {
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: databaseURL, ApplicationName: "storectl", MaxConns: 2})
	if err != nil {
		return nil, nil, err
	}
	svc := &promo.Service{
		Store:      promo.PGStore{DB: pool},
		Exclusions: catalog.Store{DB: pool},
		Currency:   currency,
		Logger:     logger,
	}
	return svc, pool.Close, nil
}

type rootOptions struct {
	databaseURL string
	currency    string
	logLevel    string
}

func newRootCmd(d deps) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "storectl",
		Short:         "Operator tooling for the Maison Parfum API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			decimal.MarshalJSONWithoutQuotes = true
			return opts.fillFromEnv(cmd)
		},
	}
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "Postgres URL (default $DATABASE_URL)")
	root.PersistentFlags().StringVar(&opts.currency, "currency", "", "currency code (default $CURRENCY_CODE or EUR)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(newMigrateCmd(d, opts), newQuoteCmd(opts), newPromoCmd(d, opts))
	return root
}

// fillFromEnv applies environment values to flags the user did not set.
func (o *rootOptions) fillFromEnv(cmd *cobra.Command) error {
	_ = godotenv.Load()
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return fmt.Errorf("load env: %w", err)
	}
	flags := cmd.Flags()
	if !flags.Changed("database-url") && o.databaseURL == "" {
		o.databaseURL = strings.TrimSpace(k.String("DATABASE_URL"))
	}
	if !flags.Changed("currency") && o.currency == "" {
		o.currency = strings.TrimSpace(k.String("CURRENCY_CODE"))
	}
	if o.currency == "" {
		o.currency = "EUR"
	}
	o.currency = strings.ToUpper(o.currency)
	return nil
}

func (o *rootOptions) logger(w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(o.logLevel))
	if err != nil {
		lvl = zerolog.WarnLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w}).Level(lvl).With().Timestamp().Logger()
}

func (o *rootOptions) requireDatabase() error {
	if o.databaseURL == "" {
		return errors.New("database url required: pass --database-url or set DATABASE_URL")
	}
	return nil
}

func newMigrateCmd(d deps, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the embedded schema migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(db.Up), string(db.Down)},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireDatabase(); err != nil {
				return err
			}
			status, err := d.migrate(opts.databaseURL, db.Direction(args[0]))
			if err != nil {
				return err
			}
			state := "no change"
			if status.Changed {
				state = "applied"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: %s (version %d, dirty %t)\n",
				args[0], state, status.Version, status.Dirty)
			return err
		},
	}
	return cmd
}

// quoteFile is an offline cart: prices come from the file, shipping from the
// default settings.
type quoteFile struct {
	ShippingMethod string          `json:"shippingMethod"`
	Discount       pricing.Money   `json:"discount"`
	Lines          []quoteFileLine `json:"lines"`
}

type quoteFileLine struct {
	ProductID       string                   `json:"productId"`
	BasePrice       pricing.Money            `json:"basePrice"`
	UnitPriceBySize map[string]pricing.Money `json:"unitPriceBySize"`
	SelectedSize    string                   `json:"selectedSize"`
	Quantity        int                      `json:"quantity"`
	Stock           *int                     `json:"stock"`
}

type quoteOutput struct {
	pricing.Summary
	OutOfStock []string `json:"outOfStock"`
}

func newQuoteCmd(opts *rootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Price a cart file offline with the default shipping settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				return errors.New("--file is required")
			}
			var in io.Reader = cmd.InOrStdin()
			if path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var cart quoteFile
			dec := json.NewDecoder(in)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&cart); err != nil {
				return fmt.Errorf("decode %s: %w", path, err)
			}
			summary, outOfStock, err := priceFile(cart)
			if err != nil {
				return err
			}
			if outOfStock == nil {
				outOfStock = []string{}
			}
			return writeJSON(cmd.OutOrStdout(), quoteOutput{Summary: summary, OutOfStock: outOfStock})
		},
	}
	cmd.Flags().StringVarP(&path, "file", "f", "", "cart JSON file, - for stdin")
	return cmd
}

func priceFile(cart quoteFile) (pricing.Summary, []string, error) {
	method, err := pricing.ParseShippingMethod(cart.ShippingMethod)
	if err != nil {
		return pricing.Summary{}, nil, err
	}
	lines := make([]pricing.Line, 0, len(cart.Lines))
	for _, l := range cart.Lines {
		lines = append(lines, pricing.Line{
			ProductID:       l.ProductID,
			UnitPriceBySize: l.UnitPriceBySize,
			BasePrice:       l.BasePrice,
			SelectedSize:    l.SelectedSize,
			Quantity:        l.Quantity,
			Stock:           l.Stock,
		})
	}
	if err := pricing.ValidateLines(lines); err != nil {
		return pricing.Summary{}, nil, err
	}
	summary, err := pricing.Compute(lines, method, pricing.DefaultShippingSettings(), cart.Discount)
	if err != nil {
		return pricing.Summary{}, nil, err
	}
	return summary, pricing.OutOfStock(lines), nil
}

type checkOutput struct {
	Valid          bool             `json:"valid"`
	PromoCode      *promo.Public    `json:"promoCode,omitempty"`
	DiscountAmount pricing.Money    `json:"discountAmount"`
	Rejection      *promo.Rejection `json:"rejection,omitempty"`
}

func newPromoCmd(d deps, opts *rootOptions) *cobra.Command {
	promoCmd := &cobra.Command{
		Use:   "promo",
		Short: "Inspect promo codes",
	}
	var (
		subtotal string
		products []string
	)
	check := &cobra.Command{
		Use:   "check CODE",
		Short: "Validate a promo code against the live database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireDatabase(); err != nil {
				return err
			}
			amount, err := pricing.Parse(subtotal)
			if err != nil {
				return fmt.Errorf("--subtotal: %w", err)
			}
			logger := opts.logger(cmd.ErrOrStderr())
			svc, closeFn, err := d.openPromo(cmd.Context(), opts.databaseURL, opts.currency, logger)
			if err != nil {
				return err
			}
			defer closeFn()
			outcome, err := svc.Validate(cmd.Context(), args[0], amount, products)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), checkOutput{
				Valid:          outcome.Valid,
				PromoCode:      outcome.Promo,
				DiscountAmount: outcome.DiscountAmount,
				Rejection:      outcome.Rejection,
			})
		},
	}
	check.Flags().StringVar(&subtotal, "subtotal", "0", "cart subtotal")
	check.Flags().StringSliceVar(&products, "product", nil, "product or pack id in the cart (repeatable)")
	promoCmd.AddCommand(check)
	return promoCmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
