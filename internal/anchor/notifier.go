// Package anchor posts tamper-evidence digests of acknowledged payments to
// an external anchoring service. Anchoring is best-effort: failures are
// logged and never affect sync state.
package anchor

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openbursar/feesync/internal/logging"
	"github.com/openbursar/feesync/internal/models"
)

// Notifier sends one digest per acknowledged payment, fire-and-forget. A
// small worker pool bounds concurrent requests.
type Notifier struct {
	url    string
	client *http.Client
	log    *logging.Logger
	sem    chan struct{}
}

// NewNotifier creates a Notifier posting to url. Returns nil when url is
// empty, which disables anchoring.
func NewNotifier(url string, timeout time.Duration) *Notifier {
	if url == "" {
		return nil
	}
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    logging.Get(),
		sem:    make(chan struct{}, 4),
	}
}

// digest is obtained over the payment's financial identity, not its full
// JSON encoding, so cosmetic field changes do not break the chain.
func digest(p *models.Payment) string {
	material := fmt.Sprintf("%s|%s|%d|%s|%d",
		p.ID, p.StudentID, p.Amount, p.Method, p.PaidAt)
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}

type anchorRequest struct {
	PaymentID  string `json:"payment_id"`
	Digest     string `json:"digest"`
	AnchoredAt int64  `json:"anchored_at"`
}

// PaymentSynced posts the payment's digest in the background. Never blocks
// the caller beyond acquiring a worker slot.
func (n *Notifier) PaymentSynced(p *models.Payment) {
	req := anchorRequest{
		PaymentID:  p.ID.String(),
		Digest:     digest(p),
		AnchoredAt: time.Now().Unix(),
	}

	select {
	case n.sem <- struct{}{}:
	default:
		n.log.Warn("anchor workers saturated, digest dropped", map[string]interface{}{
			"payment_id": req.PaymentID,
		})
		return
	}

	go func() {
		defer func() { <-n.sem }()
		n.post(req)
	}()
}

func (n *Notifier) post(req anchorRequest) {
	body, err := json.Marshal(req)
	if err != nil {
		n.log.Error("failed to encode anchor request", err)
		return
	}

	resp, err := n.client.Post(n.url, "application/json", bytes.NewReader(body))
	if err != nil {
		n.log.Warn("anchor post failed", map[string]interface{}{
			"payment_id": req.PaymentID,
			"error":      err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.log.Warn("anchor service refused digest", map[string]interface{}{
			"payment_id": req.PaymentID,
			"status":     resp.StatusCode,
		})
		return
	}
	n.log.Debug("payment digest anchored", map[string]interface{}{
		"payment_id": req.PaymentID,
	})
}
