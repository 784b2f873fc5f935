package lib

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// WalletPassClient talks to the external pass brokering service that renders
// Apple/Google wallet passes. This service only records the returned URL;
// pass file generation stays on the collaborator's side.
type WalletPassClient struct {
	baseURL string
	client  *http.Client
}

var walletPassClient *WalletPassClient

func GetWalletPassClient() *WalletPassClient {
	if walletPassClient != nil {
		return walletPassClient
	}
	c := &WalletPassClient{
		baseURL: os.Getenv("WALLET_PASS_SERVICE_URL"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
	walletPassClient = c
	return c
}

func NewWalletPassClient(c *WalletPassClient) {
	walletPassClient = c
}

func NewWalletPassClientWithBase(baseURL string, client *http.Client) *WalletPassClient {
	return &WalletPassClient{baseURL: baseURL, client: client}
}

func (c *WalletPassClient) IssuePass(ctx context.Context, provider, ticketID, ticketCode, eventID string) (string, error) {
	body := map[string]string{
		"provider":   provider,
		"ticketId":   ticketID,
		"ticketCode": ticketCode,
		"eventId":    eventID,
	}
	payload, err := json.Marshal(&body)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/passes", c.baseURL), bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		err := fmt.Errorf("pass service returned status %d", res.StatusCode)
		log.Printf("[walletpass] Error issuing %s pass for ticket %s: %s\n", provider, ticketID, err.Error())
		return "", err
	}
	var out struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.URL, nil
}
