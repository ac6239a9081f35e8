package payment

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PixPayload is a static-key Pix charge rendered as an EMV BR Code.
type PixPayload struct {
	Key          string // DICT key: e-mail, phone, CPF/CNPJ or random key
	MerchantName string // at most 25 characters
	MerchantCity string // at most 15 characters
	Amount       decimal.Decimal
	TxID         string // at most 25 alphanumerics; "***" when absent
}

// String renders the "copia e cola" payload, CRC included.
func (p PixPayload) String() string {
	var b strings.Builder
	b.WriteString(tlv("00", "01"))
	b.WriteString(tlv("01", "12"))
	b.WriteString(tlv("26", tlv("00", "br.gov.bcb.pix")+tlv("01", p.Key)))
	b.WriteString(tlv("52", "0000"))
	b.WriteString(tlv("53", "986"))
	if p.Amount.IsPositive() {
		b.WriteString(tlv("54", p.Amount.StringFixed(2)))
	}
	b.WriteString(tlv("58", "BR"))
	b.WriteString(tlv("59", clip(emvText(p.MerchantName), 25)))
	b.WriteString(tlv("60", clip(emvText(p.MerchantCity), 15)))
	b.WriteString(tlv("62", tlv("05", txID(p.TxID))))
	b.WriteString("6304")
	return b.String() + fmt.Sprintf("%04X", crc16CCITT([]byte(b.String())))
}

func tlv(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func clip(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

var accents = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "é", "e", "ê", "e", "í", "i",
	"ó", "o", "ô", "o", "õ", "o", "ú", "u", "ç", "c",
	"Á", "A", "À", "A", "Â", "A", "Ã", "A", "É", "E", "Ê", "E", "Í", "I",
	"Ó", "O", "Ô", "O", "Õ", "O", "Ú", "U", "Ç", "C",
)

// emvText keeps the printable ASCII subset allowed in EMV text fields.
func emvText(s string) string {
	s = accents.Replace(s)
	var b strings.Builder
	for _, r := range s {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}
	return strings.ToUpper(strings.TrimSpace(b.String()))
}

func txID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "***"
	}
	return clip(b.String(), 25)
}

// crc16CCITT is CRC-16/CCITT-FALSE: poly 0x1021, init 0xFFFF.
func crc16CCITT(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, c := range data {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
