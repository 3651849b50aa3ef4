// Package validate turns raw client input into normalized model.ClientRecord values.
package validate

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"

	"github.com/sells-group/client-analyzer/internal/apperrors"
	"github.com/sells-group/client-analyzer/internal/model"
)

// DefaultRegion is used to interpret phone numbers written without a country code.
const DefaultRegion = "ID"

// Canonical field names shared by CSV headers, JSON bodies and error reports.
const (
	FieldName               = "name"
	FieldPhone              = "phone"
	FieldBusinessCategory   = "business_category"
	FieldLocation           = "location"
	FieldRating             = "rating"
	FieldReviewCount        = "review_count"
	FieldTransactionHistory = "transaction_history"
	FieldEmail              = "email"
	FieldWebsite            = "website"
)

// Validator checks client records. It is safe for concurrent use.
type Validator struct {
	v      *validator.Validate
	region string
}

// New creates a Validator that reports fields by their JSON names.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return model.BusinessCategory(fl.Field().String()).Valid()
	})
	return &Validator{v: v, region: DefaultRegion}
}

// Row validates one raw row keyed by canonical field name. Missing keys are
// treated as absent values. Returns a *apperrors.ValidationError on failure.
func (v *Validator) Row(raw map[string]string) (model.ClientRecord, error) {
	get := func(k string) string { return strings.TrimSpace(raw[k]) }

	r := model.ClientRecord{
		Name:               get(FieldName),
		Phone:              get(FieldPhone),
		BusinessCategory:   model.BusinessCategory(get(FieldBusinessCategory)),
		Location:           get(FieldLocation),
		TransactionHistory: get(FieldTransactionHistory),
		Email:              get(FieldEmail),
		Website:            get(FieldWebsite),
	}

	if s := get(FieldRating); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return model.ClientRecord{}, apperrors.Validation(FieldRating, s, "must be a number")
		}
		r.Rating = &f
	}
	if s := get(FieldReviewCount); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return model.ClientRecord{}, apperrors.Validation(FieldReviewCount, s, "must be a whole number")
		}
		r.ReviewCount = &n
	}

	return v.Record(r)
}

// Record validates an already-typed record, as submitted through the
// single-client path. String fields are trimmed and the phone number is
// normalized to E.164 when it can be parsed.
func (v *Validator) Record(r model.ClientRecord) (model.ClientRecord, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Phone = strings.TrimSpace(r.Phone)
	r.BusinessCategory = model.BusinessCategory(strings.TrimSpace(string(r.BusinessCategory)))
	r.Location = strings.TrimSpace(r.Location)
	r.TransactionHistory = strings.TrimSpace(r.TransactionHistory)
	r.Email = strings.TrimSpace(r.Email)
	r.Website = strings.TrimSpace(r.Website)

	if r.Rating != nil && (math.IsNaN(*r.Rating) || math.IsInf(*r.Rating, 0)) {
		return model.ClientRecord{}, apperrors.Validation(FieldRating, fmt.Sprint(*r.Rating), "must be a number")
	}

	if err := v.v.Struct(r); err != nil {
		return model.ClientRecord{}, toValidationError(err)
	}

	r.Phone = v.NormalizePhone(r.Phone)
	return r, nil
}

// NormalizePhone formats a parseable phone number as E.164. Anything that
// cannot be parsed as a valid number is returned unchanged.
func (v *Validator) NormalizePhone(phone string) string {
	if phone == "" {
		return ""
	}
	num, err := phonenumbers.Parse(phone, v.region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return phone
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperrors.Validation("record", "", err.Error())
	}

	fe := verrs[0]
	value := ""
	if fe.Tag() != "required" {
		value = fmt.Sprint(fe.Value())
	}
	return apperrors.Validation(fe.Field(), value, reason(fe))
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "category":
		names := make([]string, len(model.Categories))
		for i, c := range model.Categories {
			names[i] = string(c)
		}
		return "must be one of " + strings.Join(names, ", ")
	case "gte":
		if fe.Field() == FieldRating {
			return "must be between 0 and 5"
		}
		return "must be >= " + fe.Param()
	case "lte":
		return "must be between 0 and " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}
