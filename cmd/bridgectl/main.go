// bridgectl is a CLI tool for exercising an order-bridge deployment.
// Each command performs a single operation, making it composable for scripts.
//
// Commands:
//
//	bridgectl health   [-server URL]
//	bridgectl quote    -sku SKU -cep CEP
//	bridgectl coupon   -sku SKU -code CODE
//	bridgectl checkout -sku SKU -cep CEP [-coupon CODE]
//	bridgectl push-tokens -access TOKEN -refresh TOKEN [-expires SECONDS]
//	bridgectl refresh-token
//	bridgectl order    -product CODE -value N [-qty N] [-freight N]
//	bridgectl webhook  -id PAYMENT_ID -secret SECRET [-send]
//
// Examples:
//
//	URL=$(bridgectl checkout -server http://localhost:8080 -sku +TQ1 -cep 01310-100 -q)
//	ADMIN_SECRET=... bridgectl push-tokens -access "$AT" -refresh "$RT"
//	bridgectl webhook -id 123456 -secret "$MP_WEBHOOK_SECRET" -send
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"order-bridge/internal/handler"
	"order-bridge/internal/shipping"
	"order-bridge/internal/version"
	"order-bridge/internal/webhook"
)

var client = &http.Client{Timeout: 30 * time.Second}

// Global flags (apply to all commands)
var (
	serverURL   string
	adminSecret string
	quiet       bool
	noColor     bool
	verbose     bool
)

// commands maps each subcommand to its runner.
var commands = map[string]func(args []string){
	"health":        runHealth,
	"quote":         runQuote,
	"coupon":        runCoupon,
	"checkout":      runCheckout,
	"push-tokens":   runPushTokens,
	"refresh-token": runRefreshToken,
	"order":         runOrder,
	"webhook":       runWebhook,
	"version":       func([]string) { fmt.Println(version.String()) },
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	if !dispatch(os.Args[1], os.Args[2:]) {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// dispatch runs the named command and reports whether it exists.
func dispatch(cmd string, args []string) bool {
	switch cmd {
	case "-h", "-help", "--help", "help":
		printUsage()
		return true
	}
	run, ok := commands[cmd]
	if !ok {
		return false
	}
	run(args)
	return true
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `bridgectl - order-bridge operations tool

Usage:
  bridgectl <command> [options]

Commands:
  health         Show server version and enabled integrations
  quote          Quote shipping for a product
  coupon         Validate a coupon code
  checkout       Create a Mercado Pago checkout
  push-tokens    Seed Bling OAuth tokens (admin)
  refresh-token  Force a Bling token refresh (admin)
  order          Create a Bling order directly (admin)
  webhook        Sign, and optionally send, a payment notification
  version        Print the client version

Environment:
  BRIDGE_URL     Default for -server
  ADMIN_SECRET   Default for -admin-secret
  NO_COLOR       Disable colored output

Run 'bridgectl <command> -h' for command-specific options.
`)
}

// newFlagSet registers the flags shared by every command.
func newFlagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&serverURL, "server", envOr("BRIDGE_URL", "http://localhost:8080"), "order-bridge base URL")
	fs.BoolVar(&quiet, "q", false, "Quiet mode - only output the essential value")
	fs.BoolVar(&noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&verbose, "v", false, "Verbose - show full request/response")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bridgectl %s\n\nOptions:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string) {
	fs.Parse(args)
	serverURL = strings.TrimRight(serverURL, "/")
	if noColor {
		disableColors()
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// =============================================================================
// HEALTH COMMAND
// =============================================================================

func runHealth(args []string) {
	fs := newFlagSet("health", "health [options]")
	parse(fs, args)

	var health struct {
		Status       string          `json:"status"`
		Version      string          `json:"version"`
		Integrations map[string]bool `json:"integrations"`
	}
	if _, err := doJSON(http.MethodGet, "/health", nil, nil, &health); err != nil {
		fatal("Health check failed: %v", err)
	}

	if quiet {
		fmt.Println(health.Status)
		return
	}
	printSuccess("Server %s (%s)", health.Status, health.Version)
	for _, name := range []string{"bling", "mercadopago", "carrier", "webhook"} {
		if health.Integrations[name] {
			printSuccess("%s enabled", name)
		} else {
			printWarning("%s disabled", name)
		}
	}
	if !version.SameMajor(health.Version, version.String()) {
		printWarning("server %s and client %s differ in major version", health.Version, version.String())
	}
}

// =============================================================================
// STOREFRONT COMMANDS
// =============================================================================

type quoteOption struct {
	Name  string  `json:"nome"`
	Price float64 `json:"valor"`
	Days  int     `json:"prazo"`
}

func runQuote(args []string) {
	fs := newFlagSet("quote", "quote -sku SKU -cep CEP [options]")
	var sku, cep string
	fs.StringVar(&sku, "sku", "", "Product SKU (required)")
	fs.StringVar(&cep, "cep", "", "Destination postal code (required)")
	parse(fs, args)

	if sku == "" || cep == "" {
		fs.Usage()
		os.Exit(1)
	}

	var options []quoteOption
	resp, err := doJSON(http.MethodPost, "/api/consultar-frete", nil,
		map[string]string{"sku": sku, "cep": cep}, &options)
	if err != nil {
		fatal("Quote failed: %v", err)
	}

	source, err := shipping.ParseHeader(resp.Header.Get(shipping.HeaderName))
	if err != nil {
		printWarning("unreadable %s header: %v", shipping.HeaderName, err)
	}

	if quiet {
		if len(options) > 0 {
			fmt.Printf("%.2f\n", options[0].Price)
		}
		return
	}
	if source == shipping.KindFallback {
		printWarning("carrier unavailable, fallback price")
	} else {
		printSuccess("%d option(s) from %s", len(options), source)
	}
	for _, o := range options {
		fmt.Printf("  %s%-24s%s %s  %d day(s)\n", colorCyan, o.Name, colorReset, formatBRL(o.Price), o.Days)
	}
}

func runCoupon(args []string) {
	fs := newFlagSet("coupon", "coupon -sku SKU -code CODE [options]")
	var sku, code string
	fs.StringVar(&sku, "sku", "", "Product SKU (required)")
	fs.StringVar(&code, "code", "", "Coupon code (required)")
	parse(fs, args)

	if sku == "" || code == "" {
		fs.Usage()
		os.Exit(1)
	}

	var res struct {
		Success         bool    `json:"success"`
		Message         string  `json:"message"`
		OriginalPrice   float64 `json:"precoOriginal"`
		DiscountedPrice float64 `json:"precoComDesconto"`
		Discount        float64 `json:"descontoAplicado"`
	}
	if _, err := doJSON(http.MethodPost, "/api/validar-cupom", nil,
		map[string]string{"sku": sku, "codigoCupom": code}, &res); err != nil {
		fatal("Coupon rejected: %v", err)
	}

	if quiet {
		fmt.Printf("%.2f\n", res.DiscountedPrice)
		return
	}
	printSuccess("Coupon %s applied", strings.ToUpper(code))
	fmt.Printf("  Price:    %s\n", formatBRL(res.OriginalPrice))
	fmt.Printf("  Discount: %s\n", formatBRL(res.Discount))
	fmt.Printf("  Final:    %s%s%s\n", colorBold, formatBRL(res.DiscountedPrice), colorReset)
}

func runCheckout(args []string) {
	fs := newFlagSet("checkout", "checkout -sku SKU -cep CEP [-coupon CODE] [options]")
	var sku, cep, coupon string
	var freight, discounted float64
	fs.StringVar(&sku, "sku", "", "Product SKU (required)")
	fs.StringVar(&cep, "cep", "", "Destination postal code (required)")
	fs.StringVar(&coupon, "coupon", "", "Coupon code")
	fs.Float64Var(&freight, "freight", 0, "Shipping price shown to the buyer (0 = omit)")
	fs.Float64Var(&discounted, "price", 0, "Discounted product price shown to the buyer (0 = omit)")
	parse(fs, args)

	if sku == "" || cep == "" {
		fs.Usage()
		os.Exit(1)
	}

	body := map[string]any{"sku": sku, "cep": cep}
	if coupon != "" {
		body["codigoCupom"] = coupon
	}
	if freight > 0 {
		body["valorFrete"] = freight
	}
	if discounted > 0 {
		body["precoComDesconto"] = discounted
	}

	var res struct {
		PreferenceID string `json:"preferenceId"`
		RedirectURL  string `json:"redirectUrl"`
	}
	if _, err := doJSON(http.MethodPost, "/api/criar-checkout", nil, body, &res); err != nil {
		fatal("Checkout failed: %v", err)
	}

	if quiet {
		fmt.Println(res.RedirectURL)
		return
	}
	printSuccess("Checkout created")
	fmt.Printf("  Preference: %s%s%s\n", colorCyan, res.PreferenceID, colorReset)
	fmt.Printf("  Pay at:     %s\n", res.RedirectURL)
}

// =============================================================================
// ADMIN COMMANDS
// =============================================================================

func adminFlags(fs *flag.FlagSet) {
	fs.StringVar(&adminSecret, "admin-secret", os.Getenv("ADMIN_SECRET"), "Admin secret")
}

func adminHeaders() http.Header {
	if adminSecret == "" {
		fatal("admin secret required: set -admin-secret or ADMIN_SECRET")
	}
	h := http.Header{}
	h.Set(handler.AdminSecretHeader, adminSecret)
	return h
}

type tokenStatus struct {
	OK        bool      `json:"ok"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func runPushTokens(args []string) {
	fs := newFlagSet("push-tokens", "push-tokens -access TOKEN -refresh TOKEN [options]")
	adminFlags(fs)
	var access, refresh string
	var expiresIn int
	fs.StringVar(&access, "access", "", "Bling access token (required)")
	fs.StringVar(&refresh, "refresh", "", "Bling refresh token (required)")
	fs.IntVar(&expiresIn, "expires", 0, "Access token lifetime in seconds (0 = server default)")
	parse(fs, args)

	if access == "" || refresh == "" {
		fs.Usage()
		os.Exit(1)
	}

	body := map[string]any{"accessToken": access, "refreshToken": refresh}
	if expiresIn > 0 {
		body["expiresIn"] = expiresIn
	}

	var res tokenStatus
	if _, err := doJSON(http.MethodPost, "/admin/push-bling-tokens", adminHeaders(), body, &res); err != nil {
		fatal("Push failed: %v", err)
	}
	printSuccess("Tokens stored, access token valid until %s", res.ExpiresAt.Local().Format(time.DateTime))
}

func runRefreshToken(args []string) {
	fs := newFlagSet("refresh-token", "refresh-token [options]")
	adminFlags(fs)
	parse(fs, args)

	var res tokenStatus
	if _, err := doJSON(http.MethodPost, "/admin/refresh-bling-token", adminHeaders(), nil, &res); err != nil {
		fatal("Refresh failed: %v", err)
	}
	printSuccess("Token refreshed, valid until %s", res.ExpiresAt.Local().Format(time.DateTime))
}

func runOrder(args []string) {
	fs := newFlagSet("order", "order -product CODE -value N [options]")
	adminFlags(fs)
	var product, notes string
	var customer int64
	var qty int
	var value, freight float64
	fs.StringVar(&product, "product", "", "Bling product code (required)")
	fs.Int64Var(&customer, "customer", 0, "Bling contact id (0 = server default)")
	fs.IntVar(&qty, "qty", 1, "Quantity")
	fs.Float64Var(&value, "value", 0, "Unit price (required)")
	fs.Float64Var(&freight, "freight", 0, "Shipping price")
	fs.StringVar(&notes, "notes", "", "Order notes")
	parse(fs, args)

	if product == "" || value <= 0 {
		fs.Usage()
		os.Exit(1)
	}

	body := map[string]any{
		"codigoProduto": product,
		"quantidade":    qty,
		"valor":         value,
		"frete":         freight,
	}
	if customer > 0 {
		body["idCliente"] = customer
	}
	if notes != "" {
		body["observacoes"] = notes
	}

	var res struct {
		ID     int64 `json:"id"`
		Number int64 `json:"numero"`
	}
	if _, err := doJSON(http.MethodPost, "/api/pedidos", adminHeaders(), body, &res); err != nil {
		fatal("Order failed: %v", err)
	}

	if quiet {
		fmt.Println(res.ID)
		return
	}
	printSuccess("Order created")
	fmt.Printf("  ID: %s%d%s\n", colorCyan, res.ID, colorReset)
	if res.Number != 0 {
		fmt.Printf("  Number: %d\n", res.Number)
	}
}

// =============================================================================
// WEBHOOK COMMAND
// =============================================================================

func runWebhook(args []string) {
	fs := newFlagSet("webhook", "webhook -id PAYMENT_ID -secret SECRET [-send] [options]")
	var paymentID, secret, ts string
	var send bool
	fs.StringVar(&paymentID, "id", "", "Mercado Pago payment id (required)")
	fs.StringVar(&secret, "secret", os.Getenv("MP_WEBHOOK_SECRET"), "Webhook signing secret")
	fs.StringVar(&ts, "ts", "", "Signature timestamp (default: now, in milliseconds)")
	fs.BoolVar(&send, "send", false, "POST the notification to the server")
	parse(fs, args)

	if paymentID == "" || secret == "" {
		fs.Usage()
		os.Exit(1)
	}
	if ts == "" {
		ts = strconv.FormatInt(time.Now().UnixMilli(), 10)
	}

	signature := webhook.Sign(secret, paymentID, ts)
	if !send {
		fmt.Println(signature)
		return
	}

	h := http.Header{}
	h.Set(webhook.SignatureHeader, signature)
	body := map[string]any{
		"type":   webhook.TopicPayment,
		"action": "payment.updated",
		"data":   map[string]string{"id": paymentID},
	}

	var res struct {
		Outcome string `json:"outcome"`
		OrderID int64  `json:"orderId"`
	}
	if _, err := doJSON(http.MethodPost, "/mercadopago/webhook", h, body, &res); err != nil {
		fatal("Notification rejected: %v", err)
	}

	if quiet {
		fmt.Println(res.Outcome)
		return
	}
	switch res.Outcome {
	case string(webhook.OutcomeSubmitted):
		printSuccess("Order %d created", res.OrderID)
	case string(webhook.OutcomeFailed):
		printError("Processing failed, see server alerts")
	default:
		printInfo("Outcome: %s", res.Outcome)
	}
}
