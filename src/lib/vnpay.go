package lib

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	VNPayVersion          = "2.1.0"
	VNPayCommandPay       = "pay"
	VNPayCurrCode         = "VND"
	VNPayLocale           = "vn"
	VNPayOrderType        = "other"
	VNPayResponseSuccess  = "00"
	VNPayCreateDateFormat = "20060102150405"

	VNPayParamSecureHash     = "vnp_SecureHash"
	VNPayParamSecureHashType = "vnp_SecureHashType"
	VNPayParamResponseCode   = "vnp_ResponseCode"
	VNPayParamTxnRef         = "vnp_TxnRef"
	VNPayParamTransactionNo  = "vnp_TransactionNo"
	VNPayParamBankCode       = "vnp_BankCode"
	VNPayParamCardType       = "vnp_CardType"
	VNPayParamAmount         = "vnp_Amount"
)

type VNPayConfig struct {
	TmnCode    string
	HashSecret string
	PayURL     string
	ReturnURL  string
}

func GetVNPayConfig() VNPayConfig {
	return VNPayConfig{
		TmnCode:    os.Getenv("VNPAY_TMN_CODE"),
		HashSecret: os.Getenv("VNPAY_HASH_SECRET"),
		PayURL:     os.Getenv("VNPAY_PAY_URL"),
		ReturnURL:  os.Getenv("VNPAY_RETURN_URL"),
	}
}

// VNPayBuildPaymentURL builds the signed redirect URL for one booking. The
// provider expects the amount in minor units (price x 100) and the create
// date as yyyyMMddHHmmss.
func VNPayBuildPaymentURL(cfg VNPayConfig, bookingID uint, price int64, orderInfo string, clientIP string, createdAt time.Time) string {
	params := map[string]string{
		"vnp_Version":    VNPayVersion,
		"vnp_Command":    VNPayCommandPay,
		"vnp_TmnCode":    cfg.TmnCode,
		VNPayParamAmount: strconv.FormatInt(price*100, 10),
		"vnp_CurrCode":   VNPayCurrCode,
		VNPayParamTxnRef: strconv.FormatUint(uint64(bookingID), 10),
		"vnp_OrderInfo":  orderInfo,
		"vnp_OrderType":  VNPayOrderType,
		"vnp_Locale":     VNPayLocale,
		"vnp_ReturnUrl":  cfg.ReturnURL,
		"vnp_IpAddr":     clientIP,
		"vnp_CreateDate": createdAt.Format(VNPayCreateDateFormat),
	}
	return fmt.Sprintf("%s?%s", cfg.PayURL, VNPaySignedQuery(params, cfg.HashSecret))
}

// VNPaySignedQuery sorts the parameter names, URL-encodes the values, signs
// the joined payload with HMAC-SHA512 and appends the uppercase hex digest as
// vnp_SecureHash.
func VNPaySignedQuery(params map[string]string, secret string) string {
	payload := vnpayHashPayload(params)
	return fmt.Sprintf("%s&%s=%s", payload, VNPayParamSecureHash, vnpayHMAC(secret, payload))
}

// VNPayVerifyCallback recomputes the signature over the callback parameters,
// minus the hash fields themselves, and compares it case-insensitively to the
// provider-supplied one.
func VNPayVerifyCallback(params map[string]string, secret string) bool {
	got := params[VNPayParamSecureHash]
	if got == "" {
		return false
	}
	unsigned := make(map[string]string, len(params))
	for k, v := range params {
		if k == VNPayParamSecureHash || k == VNPayParamSecureHashType {
			continue
		}
		unsigned[k] = v
	}
	want := vnpayHMAC(secret, vnpayHashPayload(unsigned))
	return strings.EqualFold(got, want)
}

func vnpayHashPayload(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", url.QueryEscape(k), url.QueryEscape(params[k])))
	}
	return strings.Join(parts, "&")
}

func vnpayHMAC(secret string, payload string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(payload))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
