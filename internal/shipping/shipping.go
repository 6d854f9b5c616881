// Package shipping quotes delivery cost for a package.
//
// Quote always produces a result. When the carrier cannot be reached or gives
// nothing usable, the result is the fixed fallback quote and its Kind says so,
// letting callers tell authoritative carrier prices from the policy default.
package shipping

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/dunglas/httpsfv"

	"order-bridge/internal/model"
)

// Kind tags where a quote came from.
type Kind string

const (
	KindLive     Kind = "live"
	KindFallback Kind = "fallback"
)

// HeaderName is the response header carrying the quote source.
const HeaderName = "Shipping-Quote"

// Carrier package floors. Smaller packages are rounded up before quoting.
const (
	MinLengthCm = 16.0
	MinWidthCm  = 11.0
	MinHeightCm = 2.0
	MinWeightKg = 0.3
)

// Fallback is the quote used whenever no live price is available.
// It is a business policy, not a computed price.
var Fallback = Option{
	Carrier: "Frete Padrão",
	Price:   model.NewAmount(25.50),
	EtaDays: 5,
}

// Dimensions of a package in centimeters.
type Dimensions struct {
	LengthCm float64 `json:"length_cm"`
	HeightCm float64 `json:"height_cm"`
	WidthCm  float64 `json:"width_cm"`
}

// Request describes a package to quote.
type Request struct {
	OriginZip     string
	DestZip       string
	WeightKg      float64
	Dimensions    Dimensions
	DeclaredValue model.Amount
}

// Option is a single delivery offer.
type Option struct {
	Carrier string       `json:"carrier"`
	Price   model.Amount `json:"price"`
	EtaDays int          `json:"eta_days"`
}

// Result is the outcome of a quote. Options is never empty.
type Result struct {
	Kind    Kind
	Options []Option
}

// Best returns the cheapest option.
func (r Result) Best() Option {
	if len(r.Options) == 0 {
		return Fallback
	}
	return r.Options[0]
}

// Header renders the result as an RFC 8941 dictionary,
// e.g. `source=live, options=3`.
func (r Result) Header() (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("source", httpsfv.NewItem(httpsfv.Token(r.Kind)))
	dict.Add("options", httpsfv.NewItem(int64(len(r.Options))))
	return httpsfv.Marshal(dict)
}

// ParseHeader reads the source back from a Shipping-Quote header value.
func ParseHeader(v string) (Kind, error) {
	dict, err := httpsfv.UnmarshalDictionary([]string{v})
	if err != nil {
		return "", err
	}
	member, ok := dict.Get("source")
	if !ok {
		return "", nil
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", nil
	}
	tok, _ := item.Value.(httpsfv.Token)
	return Kind(tok), nil
}

// Carrier fetches live delivery options. Implementations return options in
// any order; an empty slice means the carrier had nothing to offer.
type Carrier interface {
	Calculate(ctx context.Context, req Request) ([]Option, error)
}

// Quoter wraps a Carrier with input normalization and the fallback policy.
type Quoter struct {
	carrier Carrier
	logger  *slog.Logger
	observe func(Kind)
}

// NewQuoter creates a Quoter. A nil carrier always yields the fallback.
// observe, if set, is called once per quote.
func NewQuoter(carrier Carrier, logger *slog.Logger, observe func(Kind)) *Quoter {
	if observe == nil {
		observe = func(Kind) {}
	}
	return &Quoter{carrier: carrier, logger: logger, observe: observe}
}

// Quote prices the package. It never fails.
func (q *Quoter) Quote(ctx context.Context, req Request) Result {
	origin, okOrigin := NormalizeCEP(req.OriginZip)
	dest, okDest := NormalizeCEP(req.DestZip)
	if !okOrigin || !okDest {
		q.logger.Warn("invalid postal code, using fallback quote",
			slog.String("origin", req.OriginZip),
			slog.String("destination", req.DestZip),
		)
		return q.fallback()
	}
	if q.carrier == nil {
		return q.fallback()
	}

	req.OriginZip = origin
	req.DestZip = dest
	req = applyMinimums(req)

	options, err := q.carrier.Calculate(ctx, req)
	if err != nil {
		q.logger.Warn("carrier quote failed, using fallback quote",
			slog.String("destination", dest),
			slog.String("error", err.Error()),
		)
		return q.fallback()
	}

	valid := options[:0:0]
	for _, o := range options {
		if o.Price.IsPositive() {
			valid = append(valid, o)
		}
	}
	if len(valid) == 0 {
		q.logger.Warn("carrier returned no usable options, using fallback quote",
			slog.String("destination", dest),
		)
		return q.fallback()
	}

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Price.LessThan(valid[j].Price.Decimal) })
	q.observe(KindLive)
	return Result{Kind: KindLive, Options: valid}
}

func (q *Quoter) fallback() Result {
	q.observe(KindFallback)
	return Result{Kind: KindFallback, Options: []Option{Fallback}}
}

// NormalizeCEP strips everything but digits from a Brazilian postal code and
// reports whether eight digits remain.
func NormalizeCEP(cep string) (string, bool) {
	var b strings.Builder
	for _, r := range cep {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	return out, len(out) == 8
}

func applyMinimums(req Request) Request {
	req.Dimensions.LengthCm = max(req.Dimensions.LengthCm, MinLengthCm)
	req.Dimensions.WidthCm = max(req.Dimensions.WidthCm, MinWidthCm)
	req.Dimensions.HeightCm = max(req.Dimensions.HeightCm, MinHeightCm)
	req.WeightKg = max(req.WeightKg, MinWeightKg)
	return req
}
