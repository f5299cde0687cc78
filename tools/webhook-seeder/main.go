package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	targetURL  = flag.String("url", "http://localhost:3000/webhook", "Webhook endpoint URL")
	appSecret  = flag.String("app-secret", "", "App secret for X-Hub-Signature-256 (optional)")
	count      = flag.Int("count", 100, "Number of webhooks to generate")
	interval   = flag.Duration("interval", 100*time.Millisecond, "Interval between webhooks")
	kinds      = flag.String("kinds", "whatsapp,instagram,messenger,status,admin", "Comma-separated webhook kinds")
	accountIDs = flag.String("accounts", "", "Comma-separated account IDs to use (random when empty)")
)

func main() {
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	log.Printf("Starting webhook seeder:")
	log.Printf("  Target URL: %s", *targetURL)
	log.Printf("  Webhook count: %d", *count)
	log.Printf("  Interval: %v", *interval)

	types := splitList(*kinds)
	accounts := splitList(*accountIDs)
	log.Printf("  Kinds: %v", types)

	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	successCount := 0
	failCount := 0

	for i := 0; i < *count; i++ {
		kind := types[rand.Intn(len(types))]
		payload := generateWebhook(kind, pickAccount(accounts))

		if err := send(client, *targetURL, *appSecret, payload); err != nil {
			log.Printf("Failed to send webhook: %v", err)
			failCount++
		} else {
			successCount++
			if successCount%50 == 0 {
				log.Printf("Progress: %d/%d webhooks sent", successCount, *count)
			}
		}

		if *interval > 0 && i < *count-1 {
			time.Sleep(*interval)
		}
	}

	log.Printf("\nSeeding complete:")
	log.Printf("  Success: %d webhooks", successCount)
	log.Printf("  Failed: %d webhooks", failCount)
}

func splitList(s string) []string {
	result := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}

func pickAccount(accounts []string) string {
	if len(accounts) > 0 {
		return accounts[rand.Intn(len(accounts))]
	}
	return fmt.Sprintf("%d", gofakeit.Number(100000000000000, 999999999999999))
}

func generateWebhook(kind, accountID string) map[string]interface{} {
	switch kind {
	case "instagram":
		return instagramMessage(accountID)
	case "messenger":
		return messengerMessage(accountID)
	case "status":
		return whatsappStatus(accountID)
	case "admin":
		return accountUpdate(accountID)
	default:
		return whatsappMessage(accountID)
	}
}

func whatsappMessage(accountID string) map[string]interface{} {
	return map[string]interface{}{
		"object": "whatsapp_business_account",
		"entry": []map[string]interface{}{
			{
				"id": accountID,
				"changes": []map[string]interface{}{
					{
						"field": "messages",
						"value": map[string]interface{}{
							"messaging_product": "whatsapp",
							"metadata": map[string]interface{}{
								"display_phone_number": gofakeit.Phone(),
								"phone_number_id":      accountID,
							},
							"messages": []map[string]interface{}{
								{
									"from":      gofakeit.Phone(),
									"id":        "wamid." + gofakeit.UUID(),
									"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
									"type":      "text",
									"text": map[string]interface{}{
										"body": gofakeit.Sentence(6),
									},
								},
							},
						},
					},
				},
			},
		},
	}
}

func whatsappStatus(accountID string) map[string]interface{} {
	statuses := []string{"sent", "delivered", "read"}
	return map[string]interface{}{
		"object": "whatsapp_business_account",
		"entry": []map[string]interface{}{
			{
				"id": accountID,
				"changes": []map[string]interface{}{
					{
						"field": "messages",
						"value": map[string]interface{}{
							"messaging_product": "whatsapp",
							"statuses": []map[string]interface{}{
								{
									"id":           "wamid." + gofakeit.UUID(),
									"status":       statuses[rand.Intn(len(statuses))],
									"timestamp":    fmt.Sprintf("%d", time.Now().Unix()),
									"recipient_id": gofakeit.Phone(),
								},
							},
						},
					},
				},
			},
		},
	}
}

func instagramMessage(accountID string) map[string]interface{} {
	return map[string]interface{}{
		"object": "instagram",
		"entry": []map[string]interface{}{
			{
				"id":   accountID,
				"time": time.Now().Unix(),
				"messaging": []map[string]interface{}{
					{
						"sender":    map[string]interface{}{"id": gofakeit.DigitN(16)},
						"recipient": map[string]interface{}{"id": accountID},
						"timestamp": time.Now().UnixMilli(),
						"message": map[string]interface{}{
							"mid":  "m_" + gofakeit.UUID(),
							"text": gofakeit.Sentence(5),
						},
					},
				},
			},
		},
	}
}

func messengerMessage(accountID string) map[string]interface{} {
	return map[string]interface{}{
		"object": "page",
		"entry": []map[string]interface{}{
			{
				"id":   accountID,
				"time": time.Now().Unix(),
				"messaging": []map[string]interface{}{
					{
						"sender":    map[string]interface{}{"id": gofakeit.DigitN(16)},
						"recipient": map[string]interface{}{"id": accountID},
						"timestamp": time.Now().UnixMilli(),
						"message": map[string]interface{}{
							"mid":  "m_" + gofakeit.UUID(),
							"text": gofakeit.Sentence(5),
						},
					},
				},
			},
		},
	}
}

func accountUpdate(accountID string) map[string]interface{} {
	events := []string{"VERIFIED_ACCOUNT", "DISABLED_UPDATE", "ACCOUNT_RESTRICTION", "ACCOUNT_DELETED"}
	return map[string]interface{}{
		"object": "whatsapp_business_account",
		"entry": []map[string]interface{}{
			{
				"id": accountID,
				"changes": []map[string]interface{}{
					{
						"field": "account_update",
						"value": map[string]interface{}{
							"event":             events[rand.Intn(len(events))],
							"phone_number":      gofakeit.Phone(),
							"ban_info":          nil,
							"business_id":       gofakeit.DigitN(15),
							"current_limit":     "TIER_1K",
							"waba_info":         map[string]interface{}{"waba_id": accountID},
							"restriction_info":  nil,
							"violation_info":    nil,
							"lock_info":         nil,
							"partner_client_id": gofakeit.UUID(),
						},
					},
				},
			},
		},
	}
}

func send(client *http.Client, url, secret string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	return nil
}
