package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	injectAddr string
	injectStream string
	injectType string
	injectPayload string
)

var injectCmd = &cobra.Command{
	Use: "inject",
	Short: "Send one event to a running vsmd's direct-injection API",
	Long: `inject posts a single event to a running vsmd process's /inject
endpoint, the direct-API producer source. Useful for
smoke-testing a deployment or replaying a captured event by hand.`,
	RunE: runInject,
}

func init() {
	injectCmd.Flags().StringVar(&injectAddr, "addr", "http://localhost:8090", "base URL of the target vsmd's admin API")
	injectCmd.Flags().StringVar(&injectStream, "stream", "", "stream_id the event belongs to (required)")
	injectCmd.Flags().StringVar(&injectType, "type", "", "event_type (required)")
	injectCmd.Flags().StringVar(&injectPayload, "payload", "{}", "JSON payload body")
	injectCmd.MarkFlagRequired("stream")
	injectCmd.MarkFlagRequired("type")
}

func runInject(cmd *cobra.Command, args []string) error {
	if !json.Valid([]byte(injectPayload)) {
		return fmt.Errorf("--payload is not valid JSON")
	}

	body, err := json.Marshal(map[string]json.RawMessage{
		"stream_id": rawString(injectStream),
		"event_type": rawString(injectType),
		"payload": json.RawMessage(injectPayload),
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(injectAddr+"/inject", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post to %s: %w", injectAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("vsmd rejected event: %s: %s", resp.Status, respBody)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "injected %s on stream %s\n", injectType, injectStream)
	return nil
}

func rawString(s string) json.RawMessage {
	encoded, _ := json.Marshal(s)
	return encoded
}
