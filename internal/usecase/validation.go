package usecase

import (
	"strings"
	"unicode"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/model"
)

func normalizeCreateInput(in model.OrderDraft) (model.OrderDraft, error) {
	if in.Amount <= 0 {
		return in, domainErrors.Validation("amount must be a positive integer in minor units")
	}
	if strings.TrimSpace(in.MerchantID) == "" {
		return in, domainErrors.Validation("merchantId is required")
	}
	if err := validateItems(in.Items); err != nil {
		return in, err
	}

	currency, err := normalizeCurrency(in.Currency)
	if err != nil {
		return in, err
	}
	in.Currency = currency

	switch in.OrderType {
	case "":
		in.OrderType = model.OrderTypeDineIn
	case model.OrderTypeDineIn, model.OrderTypeOther:
	default:
		return in, domainErrors.Validation("orderType must be %s or %s", model.OrderTypeDineIn, model.OrderTypeOther)
	}
	in.MerchantID = strings.TrimSpace(in.MerchantID)
	return in, nil
}

func validateItems(items []model.Item) error {
	if len(items) == 0 {
		return domainErrors.Validation("at least one item is required")
	}
	for i, item := range items {
		if strings.TrimSpace(item.Name) == "" {
			return domainErrors.Validation("item %d: name is required", i)
		}
		if item.Quantity <= 0 {
			return domainErrors.Validation("item %d: quantity must be positive", i)
		}
		if item.UnitPrice < 0 {
			return domainErrors.Validation("item %d: unitPrice must not be negative", i)
		}
	}
	return nil
}

// normalizeCurrency upper-cases an ISO 4217 code and applies the default.
func normalizeCurrency(currency string) (string, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return model.DefaultCurrency, nil
	}
	if len(currency) != 3 {
		return "", domainErrors.Validation("currency must be a 3-letter ISO code")
	}
	for _, r := range currency {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			return "", domainErrors.Validation("currency must be a 3-letter ISO code")
		}
	}
	return currency, nil
}

func normalizeRefundInput(in *model.RefundRequest) (model.RefundSpeed, error) {
	if in.Amount <= 0 {
		return "", domainErrors.Validation("refund amount must be a positive integer in minor units")
	}
	switch in.Speed {
	case "":
		return model.RefundSpeedNormal, nil
	case model.RefundSpeedNormal, model.RefundSpeedOptimum:
		return in.Speed, nil
	default:
		return "", domainErrors.Validation("speed must be %s or %s", model.RefundSpeedNormal, model.RefundSpeedOptimum)
	}
}
