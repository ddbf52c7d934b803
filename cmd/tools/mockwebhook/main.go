// mockwebhook signs a payload with a provider's webhook scheme and posts it
// to a running instance. Development aid for exercising the webhook endpoint
// without provider sandboxes.
//
//	go run ./cmd/tools/mockwebhook -provider stripe -secret whsec_xxx \
//	  -url http://localhost:8080/webhooks/stripe -body '{"id":"evt_1",...}'
package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
)

func main() {
	provider := flag.String("provider", "stripe", "stripe|nexipay|swiftqr|walletpay")
	url := flag.String("url", "http://localhost:8080/webhooks/stripe", "webhook endpoint")
	secret := flag.String("secret", "", "webhook secret (stripe, nexipay, swiftqr)")
	notificationURL := flag.String("notification-url", "", "registered notification URL (nexipay)")
	webhookID := flag.String("webhook-id", "", "configured webhook id (walletpay)")
	body := flag.String("body", "", "raw JSON payload")
	flag.Parse()

	if *body == "" {
		fmt.Fprintln(os.Stderr, "-body is required")
		os.Exit(1)
	}

	req, err := http.NewRequest(http.MethodPost, *url, bytes.NewReader([]byte(*body)))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")

	switch *provider {
	case "stripe":
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		mac := hmac.New(sha256.New, []byte(*secret))
		mac.Write([]byte(ts + "." + *body))
		req.Header.Set("Stripe-Signature",
			fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))

	case "nexipay":
		mac := hmac.New(sha256.New, []byte(*secret))
		mac.Write([]byte(*notificationURL))
		mac.Write([]byte(*body))
		req.Header.Set("X-Nexipay-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))

	case "swiftqr":
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		rid := uuid.NewString()
		mac := hmac.New(sha256.New, []byte(*secret))
		fmt.Fprintf(mac, "id=%s;request-id=%s;ts=%s;", rid, rid, ts)
		mac.Write([]byte(*body))
		req.Header.Set("X-Request-Id", rid)
		req.Header.Set("X-Swiftqr-Signature",
			fmt.Sprintf("ts=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))))

	case "walletpay":
		req.Header.Set("Walletpay-Transmission-Id", uuid.NewString())
		req.Header.Set("Walletpay-Transmission-Sig", "mock-signature")
		req.Header.Set("Walletpay-Cert-Url", "https://api.walletpay.example/certs/mock")
		req.Header.Set("Walletpay-Webhook-Id", *webhookID)

	default:
		fmt.Fprintf(os.Stderr, "unknown provider %q\n", *provider)
		os.Exit(1)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	fmt.Printf("%s\n%s\n", resp.Status, out)
}
