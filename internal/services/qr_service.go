package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/clubsocios/backend/internal/config"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// QRService builds transfer instruction codes: a QR that carries the club's
// bank coordinates plus the member and amount, so the member can pay the
// exact figure from their banking app and then report the transfer. The
// payload is kept in Redis so a reported transfer can be matched back to
// the code that produced it while the code is still fresh.
type QRService struct {
	redis *redis.Client
	cfg   *config.BillingConfig
}

func NewQRService(redis *redis.Client, cfg *config.BillingConfig) *QRService {
	return &QRService{
		redis: redis,
		cfg:   cfg,
	}
}

type TransferInstructions struct {
	BankAlias string `json:"bank_alias"`
	BankCBU   string `json:"bank_cbu"`
	Holder    string `json:"holder"`
	MemberID  string `json:"member_id"`
	Amount    int64  `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Nonce     string `json:"nonce"`
}

func (s *QRService) GenerateTransferQR(ctx context.Context, memberID string, amount int64) (string, string, error) {
	instr := TransferInstructions{
		BankAlias: s.cfg.BankAlias,
		BankCBU:   s.cfg.BankCBU,
		Holder:    s.cfg.BankHolder,
		MemberID:  memberID,
		Amount:    amount,
		Timestamp: time.Now().Unix(),
		Nonce:     s.generateNonce(),
	}

	jsonData, err := json.Marshal(instr)
	if err != nil {
		return "", "", err
	}

	code := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("transferqr:%s", code)
	if err := s.redis.Set(ctx, key, jsonData, s.cfg.QRCodeTimeout).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	qrImage := base64.StdEncoding.EncodeToString(buf.Bytes())

	return code, qrImage, nil
}

// ResolveTransferQR returns the instructions behind a scanned code and
// consumes it. Expired or unknown codes are rejected.
func (s *QRService) ResolveTransferQR(ctx context.Context, code string) (*TransferInstructions, error) {
	key := fmt.Sprintf("transferqr:%s", code)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("invalid or expired transfer code")
	}
	if err != nil {
		return nil, err
	}

	var instr TransferInstructions
	if err := json.Unmarshal(data, &instr); err != nil {
		return nil, err
	}

	s.redis.Del(ctx, key)

	return &instr, nil
}

func (s *QRService) generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
