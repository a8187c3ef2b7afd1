package main

import (
	"flag"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyquoter/internal/config"
)

// flagOverrides holds command-line values that win over file and env.
type flagOverrides struct {
	questionID string
	yesTokenID string
	noTokenID  string
	spread     string
	orderSize  int
	minShares  string
	privateKey string
	funder     string
	verbose    string
	mode       string
}

func registerFlags(fs *flag.FlagSet) *flagOverrides {
	o := &flagOverrides{}
	fs.StringVar(&o.questionID, "question-id", "", "question (condition) id")
	fs.StringVar(&o.yesTokenID, "yes-token-id", "", "YES outcome token id")
	fs.StringVar(&o.noTokenID, "no-token-id", "", "NO outcome token id")
	fs.StringVar(&o.spread, "spread", "0.025", "distance of each quote from the midpoint")
	fs.IntVar(&o.orderSize, "order-size", 1, "order size as a multiple of min-shares")
	fs.StringVar(&o.minShares, "min-shares", "", "minimum shares per order")
	fs.StringVar(&o.privateKey, "private-key", "", "wallet private key (hex)")
	fs.StringVar(&o.funder, "funder", "", "funder (proxy wallet) address")
	fs.StringVar(&o.verbose, "verbose", "", "log level: DEBUG, INFO, WARN or ERROR")
	fs.StringVar(&o.mode, "mode", "", "run mode: live, paper or archive")
	return o
}

// apply copies every explicitly set flag into cfg.
func (o *flagOverrides) apply(fs *flag.FlagSet, cfg *config.Config) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "question-id":
			cfg.Market.QuestionID = o.questionID
		case "yes-token-id":
			cfg.Market.YesTokenID = o.yesTokenID
		case "no-token-id":
			cfg.Market.NoTokenID = o.noTokenID
		case "spread":
			cfg.Quote.Spread, err = parseDecimalFlag("spread", o.spread)
		case "order-size":
			cfg.Quote.OrderSize = o.orderSize
		case "min-shares":
			cfg.Quote.MinShares, err = parseDecimalFlag("min-shares", o.minShares)
		case "private-key":
			cfg.Wallet.PrivateKey = o.privateKey
		case "funder":
			cfg.Wallet.Funder = o.funder
		case "verbose":
			cfg.LogLevel = strings.ToLower(o.verbose)
		case "mode":
			cfg.Mode = strings.ToLower(o.mode)
		}
	})
	return err
}

func parseDecimalFlag(name, v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("-%s: %w", name, err)
	}
	return d, nil
}
