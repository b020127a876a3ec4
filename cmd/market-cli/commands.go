package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/services/marketd/archive"
	"nftmarket/services/marketd/server"
)

var cliNow = time.Now

type command struct {
	summary string
	run     func(c *client, args []string, stdout, stderr io.Writer) error
}

var commandOrder = []string{
	"list", "cancel-listing", "buy",
	"offer", "cancel-offer", "accept-offer",
	"create-auction", "cancel-auction", "bid", "result-auction",
	"add-token", "tokens",
	"get-listing", "get-offers", "get-auction", "asset",
	"events", "export",
	"approve-asset", "approve-token", "balance",
	"token",
}

var commands = map[string]command{
	"list":           {"list an asset at a fixed price", runList},
	"cancel-listing": {"withdraw a listing", assetCommand("cancel-listing", http.MethodDelete, "listings", "")},
	"buy":            {"buy a listed asset", runBuy},
	"offer":          {"make an escrowed offer on a listed asset", runOffer},
	"cancel-offer":   {"withdraw your offer", assetCommand("cancel-offer", http.MethodDelete, "offers", "")},
	"accept-offer":   {"accept an offer on your listing", runAcceptOffer},
	"create-auction": {"auction an asset", runCreateAuction},
	"cancel-auction": {"cancel an auction without bids", assetCommand("cancel-auction", http.MethodDelete, "auctions", "")},
	"bid":            {"bid on an auction", runBid},
	"result-auction": {"settle an ended auction", assetCommand("result-auction", http.MethodPost, "auctions", "/result")},
	"add-token":      {"register a payable token (operator)", runAddToken},
	"tokens":         {"list payable tokens", runTokens},
	"get-listing":    {"show the active listing of an asset", assetQuery("get-listing", "listings")},
	"get-offers":     {"show offers on an asset", assetQuery("get-offers", "offers")},
	"get-auction":    {"show the active auction of an asset", assetQuery("get-auction", "auctions")},
	"asset":          {"show the marketplace state of an asset", assetQuery("asset", "assets")},
	"events":         {"query the event archive", runEvents},
	"export":         {"export the event archive to parquet", runExport},
	"approve-asset":  {"sandbox: approve the marketplace for one asset", runApproveAsset},
	"approve-token":  {"sandbox: set the marketplace token allowance", runApproveToken},
	"balance":        {"sandbox: show a balance", runBalance},
	"token":          {"mint a bearer token for a caller", runToken},
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

var errFlags = errors.New("invalid arguments")

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return errFlags
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected positional arguments: %s", strings.Join(fs.Args(), " "))
	}
	return nil
}

func required(values map[string]string) error {
	var missing []string
	for name, value := range values {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, "--"+name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%s required", strings.Join(missing, ", "))
}

type assetFlags struct {
	contract string
	id       string
}

func (a *assetFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&a.contract, "contract", "", "collection contract address")
	fs.StringVar(&a.id, "id", "", "asset id (decimal or 0x hex)")
}

func (a *assetFlags) path(resource string) string {
	return fmt.Sprintf("/v1/%s/%s/%s", resource, url.PathEscape(strings.TrimSpace(a.contract)), url.PathEscape(strings.TrimSpace(a.id)))
}

func (a *assetFlags) check() error {
	return required(map[string]string{"contract": a.contract, "id": a.id})
}

func assetCommand(name, method, resource, suffix string) func(*client, []string, io.Writer, io.Writer) error {
	return func(c *client, args []string, stdout, stderr io.Writer) error {
		fs := newFlagSet(name, stderr)
		var asset assetFlags
		var value string
		asset.register(fs)
		fs.StringVar(&value, "value", "", "native value to attach")
		if err := parse(fs, args); err != nil {
			return err
		}
		if err := asset.check(); err != nil {
			return err
		}
		var body interface{}
		if value != "" {
			body = map[string]string{"value": value}
		}
		raw, err := c.call(method, asset.path(resource)+suffix, body, true)
		if err != nil {
			return err
		}
		return printJSON(stdout, raw)
	}
}

func assetQuery(name, resource string) func(*client, []string, io.Writer, io.Writer) error {
	return func(c *client, args []string, stdout, stderr io.Writer) error {
		fs := newFlagSet(name, stderr)
		var asset assetFlags
		asset.register(fs)
		if err := parse(fs, args); err != nil {
			return err
		}
		if err := asset.check(); err != nil {
			return err
		}
		raw, err := c.call(http.MethodGet, asset.path(resource), nil, false)
		if err != nil {
			return err
		}
		return printJSON(stdout, raw)
	}
}

func runList(c *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("list", stderr)
	var asset assetFlags
	var payToken, price, value string
	asset.register(fs)
	fs.StringVar(&payToken, "pay-token", "", "payment token address (empty for native)")
	fs.StringVar(&price, "price", "", "price in base units")
	fs.StringVar(&value, "value", "", "native value to attach")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(map[string]string{"contract": asset.contract, "id": asset.id, "price": price}); err != nil {
		return err
	}
	raw, err := c.call(http.MethodPost, "/v1/listings", map[string]string{
		"contract": asset.contract,
		"assetId":  asset.id,
		"payToken": payToken,
		"price":    price,
		"value":    value,
	}, true)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runBuy(c *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("buy", stderr)
	var asset assetFlags
	var payToken, maxPrice, value string
	asset.register(fs)
	fs.StringVar(&payToken, "pay-token", "", "payment token address (empty for native)")
	fs.StringVar(&maxPrice, "max-price", "", "highest acceptable price")
	fs.StringVar(&value, "value", "", "native value to attach")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := asset.check(); err != nil {
		return err
	}
	raw, err := c.call(http.MethodPost, asset.path("listings")+"/buy", map[string]string{
		"payToken": payToken,
		"maxPrice": maxPrice,
		"value":    value,
	}, true)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runOffer(c *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("offer", stderr)
	var asset assetFlags
	var payToken, price, value string
	asset.register(fs)
	fs.StringVar(&payToken, "pay-token", "", "payment token address (empty for native)")
	fs.StringVar(&price, "price", "", "offered price in base units")
	fs.StringVar(&value, "value", "", "native value to attach")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(map[string]string{"contract": asset.contract, "id": asset.id, "price": price}); err != nil {
		return err
	}
	raw, err := c.call(http.MethodPost, "/v1/offers", map[string]string{
		"contract": asset.contract,
		"assetId":  asset.id,
		"payToken": payToken,
		"price":    price,
		"value":    value,
	}, true)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runAcceptOffer(c *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("accept-offer", stderr)
	var asset assetFlags
	var offerer string
	asset.register(fs)
	fs.StringVar(&offerer, "offerer", "", "address of the offer to accept")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(map[string]string{"contract": asset.contract, "id": asset.id, "offerer": offerer}); err != nil {
		return err
	}
	raw, err := c.call(http.MethodPost, asset.path("offers")+"/accept", map[string]string{"offerer": offerer}, true)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runCreateAuction(c *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("create-auction", stderr)
	var asset assetFlags
	var payToken, reserve, increment, start, end, value string
	asset.register(fs)
	fs.StringVar(&payToken, "pay-token", "", "payment token address (empty for native)")
	fs.StringVar(&reserve, "reserve", "", "reserve price in base units")
	fs.StringVar(&increment, "min-increment", "0", "minimum bid increment")
	fs.StringVar(&start, "start", "", "start as unix seconds, RFC3339 or +duration (empty starts now)")
	fs.StringVar(&end, "end", "", "end as unix seconds, RFC3339 or +duration")
	fs.StringVar(&value, "value", "", "native value to attach")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(map[string]string{"contract": asset.contract, "id": asset.id, "reserve": reserve, "end": end}); err != nil {
		return err
	}
	now := cliNow()
	startUnix, err := parseTime(start, now)
	if err != nil {
		return fmt.Errorf("--start: %w", err)
	}
	endUnix, err := parseTime(end, now)
	if err != nil {
		return fmt.Errorf("--end: %w", err)
	}
	raw, err := c.call(http.MethodPost, "/v1/auctions", map[string]interface{}{
		"contract":        asset.contract,
		"assetId":         asset.id,
		"payToken":        payToken,
		"reservePrice":    reserve,
		"minBidIncrement": increment,
		"startTime":       startUnix,
		"endTime":         endUnix,
		"value":           value,
	}, true)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runBid(c *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("bid", stderr)
	var asset assetFlags
	var amount, value string
	asset.register(fs)
	fs.StringVar(&amount, "amount", "", "bid amount in base units")
	fs.StringVar(&value, "value", "", "native value to attach")
	native := fs.Bool("native", false, "attach --amount as native value when --value is empty")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(map[string]string{"contract": asset.contract, "id": asset.id, "amount": amount}); err != nil {
		return err
	}
	if *native && value == "" {
		value = amount
	}
	raw, err := c.call(http.MethodPost, asset.path("auctions")+"/bids", map[string]string{
		"amount": amount,
		"value":  value,
	}, true)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runAddToken(c *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("add-token", stderr)
	var token string
	fs.StringVar(&token, "address", "", "token address to make payable")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(map[string]string{"address": token}); err != nil {
		return err
	}
	raw, err := c.call(http.MethodPost, "/v1/tokens", map[string]string{"token": token}, true)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runTokens(c *client, args []string, stdout, stderr io.Writer) error {
	if err := parse(newFlagSet("tokens", stderr), args); err != nil {
		return err
	}
	raw, err := c.call(http.MethodGet, "/v1/tokens", nil, false)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runEvents(c *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("events", stderr)
	var eventType, contract, id string
	var after uint64
	var limit int
	fs.StringVar(&eventType, "type", "", "event type filter")
	fs.StringVar(&contract, "contract", "", "collection filter")
	fs.StringVar(&id, "id", "", "asset id filter")
	fs.Uint64Var(&after, "after", 0, "only events after this sequence number")
	fs.IntVar(&limit, "limit", 0, "maximum number of events")
	if err := parse(fs, args); err != nil {
		return err
	}
	q := url.Values{}
	if eventType != "" {
		q.Set("type", eventType)
	}
	if contract != "" {
		q.Set("contract", contract)
	}
	if id != "" {
		q.Set("assetId", id)
	}
	if after > 0 {
		q.Set("after", strconv.FormatUint(after, 10))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/events"
	if encoded := q.Encode(); encoded != "" {
		path += "?" + encoded
	}
	raw, err := c.call(http.MethodGet, path, nil, false)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runExport(_ *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("export", stderr)
	var dsn, out, eventType, contract string
	fs.StringVar(&dsn, "dsn", "", "archive DSN (sqlite path or postgres:// URL)")
	fs.StringVar(&out, "out", "", "parquet output path")
	fs.StringVar(&eventType, "type", "", "event type filter")
	fs.StringVar(&contract, "contract", "", "collection filter")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(map[string]string{"dsn": dsn, "out": out}); err != nil {
		return err
	}
	arch, err := archive.Open(dsn, nil)
	if err != nil {
		return err
	}
	defer arch.Close()
	n, err := arch.ExportParquet(context.Background(), out, archive.Filter{Type: eventType, Contract: contract})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported %d events to %s\n", n, out)
	return nil
}

func runApproveAsset(c *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("approve-asset", stderr)
	var asset assetFlags
	asset.register(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := asset.check(); err != nil {
		return err
	}
	raw, err := c.call(http.MethodPost, "/v1/sandbox/approvals/assets", map[string]string{
		"contract": asset.contract,
		"assetId":  asset.id,
	}, true)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runApproveToken(c *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("approve-token", stderr)
	var token, amount string
	fs.StringVar(&token, "address", "", "token address")
	fs.StringVar(&amount, "amount", "", "allowance in base units")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(map[string]string{"address": token, "amount": amount}); err != nil {
		return err
	}
	raw, err := c.call(http.MethodPost, "/v1/sandbox/approvals/tokens", map[string]string{
		"token":  token,
		"amount": amount,
	}, true)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runBalance(c *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("balance", stderr)
	var token, account string
	fs.StringVar(&token, "token", common.Address{}.Hex(), "token address (zero address for native)")
	fs.StringVar(&account, "account", "", "account address")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(map[string]string{"account": account}); err != nil {
		return err
	}
	raw, err := c.call(http.MethodGet, fmt.Sprintf("/v1/sandbox/balances/%s/%s", url.PathEscape(token), url.PathEscape(account)), nil, false)
	if err != nil {
		return err
	}
	return printJSON(stdout, raw)
}

func runToken(_ *client, args []string, stdout, stderr io.Writer) error {
	fs := newFlagSet("token", stderr)
	var secret, issuer, caller string
	var ttl time.Duration
	fs.StringVar(&secret, "secret", os.Getenv("MARKETD_JWT_SECRET"), "HMAC secret (env MARKETD_JWT_SECRET)")
	fs.StringVar(&issuer, "issuer", "marketd", "token issuer")
	fs.StringVar(&caller, "caller", "", "caller address placed in the subject")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if err := parse(fs, args); err != nil {
		return err
	}
	if err := required(map[string]string{"secret": secret, "caller": caller}); err != nil {
		return err
	}
	if !common.IsHexAddress(caller) {
		return fmt.Errorf("--caller: invalid address %q", caller)
	}
	tok, err := server.IssueToken(secret, issuer, common.HexToAddress(caller), ttl, cliNow())
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, tok)
	return nil
}

// parseTime accepts unix seconds, RFC3339 or a +duration relative to now.
// Empty means zero, which the marketplace reads as "start immediately".
func parseTime(raw string, now time.Time) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	if strings.HasPrefix(trimmed, "+") {
		d, err := time.ParseDuration(trimmed[1:])
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return now.Add(d).Unix(), nil
	}
	if unix, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return unix, nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	return ts.Unix(), nil
}
