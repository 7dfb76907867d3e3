package lib

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path"

	"github.com/google/uuid"
	"github.com/yeqown/go-qrcode"
)

// RenderPaymentQR renders the signed payment URL as a QR image and returns it
// base64-encoded so the frontend can show it next to the redirect button.
func RenderPaymentQR(paymentURL string) (string, error) {
	qrc, err := qrcode.New(paymentURL)
	if err != nil {
		return "", err
	}
	filepath := path.Join(os.TempDir(), fmt.Sprintf("%s.jpeg", uuid.New().String()))
	if err := qrc.Save(filepath); err != nil {
		log.Printf("Could not save qrcode to file [%s]: %s\n", filepath, err.Error())
		return "", err
	}
	defer os.Remove(filepath)
	raw, err := os.ReadFile(filepath)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
