package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/Lllllllleong/freightdocflow/internal/models"
	"github.com/go-playground/validator/v10"
)

var (
	containerNumberPattern = regexp.MustCompile(`^[A-Z]{4}[0-9]{7}$`)
	unLocodePattern        = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{3}$`)
)

// errorTags are schema violations. Every other failing tag is a soft warning.
var errorTags = map[string]bool{
	"required": true,
	"datetime": true,
}

// Party is a named organisation on a freight document.
type Party struct {
	PartyName   string `json:"partyName" validate:"expected"`
	Address     string `json:"address"`
	ContactName string `json:"contactName"`
	Email       string `json:"email" validate:"omitempty,email"`
}

// Container is one piece of equipment listed on a document.
type Container struct {
	ContainerNumber  string  `json:"containerNumber" validate:"expected,container_number"`
	SealNumber       string  `json:"sealNumber"`
	ISOEquipmentCode string  `json:"isoEquipmentCode"`
	GrossWeight      float64 `json:"grossWeight"`
	WeightUnit       string  `json:"weightUnit" validate:"omitempty,oneof=KGM LBR"`
	NumberOfPackages int     `json:"numberOfPackages"`
}

// Equipment is a requested container type and quantity on a booking.
type Equipment struct {
	ISOEquipmentCode string `json:"isoEquipmentCode" validate:"expected"`
	Units            int    `json:"units" validate:"omitempty,min=1"`
}

// TransportStop is a pick-up or delivery point of a haulage leg.
type TransportStop struct {
	Address      string `json:"address" validate:"expected"`
	LocationCode string `json:"locationCode" validate:"omitempty,unlocode"`
	Date         string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Reference    string `json:"reference"`
}

// Location fields hold UN/LOCODEs.

type BookingConfirmation struct {
	CarrierBookingReference string      `json:"carrierBookingReference" validate:"required"`
	BookingDate             string      `json:"bookingDate" validate:"omitempty,datetime=2006-01-02"`
	Shipper                 Party       `json:"shipper"`
	VesselName              string      `json:"vesselName" validate:"expected"`
	VoyageNumber            string      `json:"voyageNumber" validate:"expected"`
	PortOfLoading           string      `json:"portOfLoading" validate:"expected,unlocode"`
	PortOfDischarge         string      `json:"portOfDischarge" validate:"expected,unlocode"`
	PlaceOfReceipt          string      `json:"placeOfReceipt" validate:"omitempty,unlocode"`
	PlaceOfDelivery         string      `json:"placeOfDelivery" validate:"omitempty,unlocode"`
	EstimatedDepartureDate  string      `json:"estimatedDepartureDate" validate:"expected,datetime=2006-01-02"`
	EstimatedArrivalDate    string      `json:"estimatedArrivalDate" validate:"omitempty,datetime=2006-01-02"`
	CargoCutOff             string      `json:"cargoCutOff"`
	CommodityDescription    string      `json:"commodityDescription"`
	Equipment               []Equipment `json:"equipment" validate:"expected,dive"`
	Containers              []Container `json:"containers" validate:"omitempty,dive"`
}

type BillOfLading struct {
	BillOfLadingNumber      string      `json:"billOfLadingNumber" validate:"required"`
	DocumentDate            string      `json:"documentDate" validate:"required,datetime=2006-01-02"`
	CarrierBookingReference string      `json:"carrierBookingReference"`
	Shipper                 Party       `json:"shipper"`
	Consignee               Party       `json:"consignee"`
	NotifyParty             *Party      `json:"notifyParty,omitempty" validate:"omitempty"`
	VesselName              string      `json:"vesselName" validate:"expected"`
	VoyageNumber            string      `json:"voyageNumber" validate:"expected"`
	PortOfLoading           string      `json:"portOfLoading" validate:"expected,unlocode"`
	PortOfDischarge         string      `json:"portOfDischarge" validate:"expected,unlocode"`
	PlaceOfReceipt          string      `json:"placeOfReceipt" validate:"omitempty,unlocode"`
	PlaceOfDelivery         string      `json:"placeOfDelivery" validate:"omitempty,unlocode"`
	ShippedOnBoardDate      string      `json:"shippedOnBoardDate" validate:"omitempty,datetime=2006-01-02"`
	FreightPaymentTerm      string      `json:"freightPaymentTerm" validate:"omitempty,oneof=PREPAID COLLECT"`
	NumberOfOriginals       int         `json:"numberOfOriginals" validate:"omitempty,min=0"`
	CommodityDescription    string      `json:"commodityDescription"`
	Containers              []Container `json:"containers" validate:"expected,dive"`
}

type DeliveryOrder struct {
	DeliveryOrderNumber string      `json:"deliveryOrderNumber" validate:"required"`
	IssueDate           string      `json:"issueDate" validate:"omitempty,datetime=2006-01-02"`
	BillOfLadingNumber  string      `json:"billOfLadingNumber" validate:"expected"`
	Consignee           Party       `json:"consignee"`
	DeliverTo           Party       `json:"deliverTo"`
	ReleaseTerminal     string      `json:"releaseTerminal" validate:"expected"`
	ReleaseLocation     string      `json:"releaseLocation" validate:"omitempty,unlocode"`
	ReleaseReference    string      `json:"releaseReference"`
	ValidUntil          string      `json:"validUntil" validate:"omitempty,datetime=2006-01-02"`
	Containers          []Container `json:"containers" validate:"expected,dive"`
}

type TransportOrder struct {
	TransportOrderNumber    string        `json:"transportOrderNumber" validate:"required"`
	OrderDate               string        `json:"orderDate" validate:"omitempty,datetime=2006-01-02"`
	CarrierBookingReference string        `json:"carrierBookingReference"`
	BillOfLadingNumber      string        `json:"billOfLadingNumber"`
	Haulier                 Party         `json:"haulier"`
	PickUp                  TransportStop `json:"pickUp"`
	Delivery                TransportStop `json:"delivery"`
	Instructions            string        `json:"instructions"`
	Containers              []Container   `json:"containers" validate:"expected,dive"`
}

func newSchema(docType models.DocumentType) (interface{}, bool) {
	switch docType {
	case models.DocumentTypeBookingConfirmation:
		return &BookingConfirmation{}, true
	case models.DocumentTypeBillOfLading:
		return &BillOfLading{}, true
	case models.DocumentTypeDeliveryOrder:
		return &DeliveryOrder{}, true
	case models.DocumentTypeTransportOrder:
		return &TransportOrder{}, true
	default:
		return nil, false
	}
}

// ValidationResult splits schema problems into hard errors and soft warnings.
// Valid is false whenever there is at least one error.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// SchemaValidator checks extracted data against the schema of its document type.
type SchemaValidator struct {
	validate *validator.Validate
}

func NewSchemaValidator() *SchemaValidator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("expected", validateExpected, true)
	_ = v.RegisterValidation("container_number", func(fl validator.FieldLevel) bool {
		return containerNumberPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("unlocode", func(fl validator.FieldLevel) bool {
		return unLocodePattern.MatchString(fl.Field().String())
	})
	return &SchemaValidator{validate: v}
}

func validateExpected(fl validator.FieldLevel) bool {
	field := fl.Field()
	switch field.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return field.Len() > 0
	case reflect.Invalid:
		return false
	default:
		return !field.IsZero()
	}
}

// Validate checks data against the schema selected by docType. The
// documentType carried inside data must be present; a value that disagrees
// with docType is reported as a warning.
func (s *SchemaValidator) Validate(docType models.DocumentType, data map[string]interface{}) ValidationResult {
	result := ValidationResult{Errors: []string{}, Warnings: []string{}}

	declared, _ := data["documentType"].(string)
	switch {
	case declared == "":
		result.Errors = append(result.Errors, "documentType is required")
	case models.DocumentType(declared) != docType:
		result.Warnings = append(result.Warnings, fmt.Sprintf("documentType %q does not match classified type %q", declared, docType))
	}

	schema, ok := newSchema(docType)
	if !ok {
		result.Errors = append(result.Errors, fmt.Sprintf("unsupported documentType %q", docType))
		return result
	}

	decodeErrs, decodeWarns := decodeFields(schema, data)
	result.Errors = append(result.Errors, decodeErrs...)
	result.Warnings = append(result.Warnings, decodeWarns...)

	if err := s.validate.Struct(schema); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			result.Errors = append(result.Errors, err.Error())
		}
		for _, fe := range fieldErrs {
			msg := describeFieldError(fe)
			if errorTags[fe.Tag()] {
				result.Errors = append(result.Errors, msg)
			} else {
				result.Warnings = append(result.Warnings, msg)
			}
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

// decodeFields fills schema one top-level field at a time so a value of the
// wrong JSON type only loses that field. A mismatch on a scalar (a number sent
// as a string) is a warning; a mismatch on an object or list is an error.
func decodeFields(schema interface{}, data map[string]interface{}) (errs, warns []string) {
	v := reflect.ValueOf(schema).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		name := jsonFieldName(t.Field(i))
		value, ok := data[name]
		if name == "" || !ok || value == nil {
			continue
		}
		raw, err := json.Marshal(value)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s cannot be encoded: %v", name, err))
			continue
		}
		target := reflect.New(t.Field(i).Type)
		err = json.Unmarshal(raw, target.Interface())
		v.Field(i).Set(target.Elem())
		if err == nil {
			continue
		}

		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			errs = append(errs, fmt.Sprintf("%s is malformed: %v", name, err))
			continue
		}
		path := name
		if typeErr.Field != "" {
			path = name + "." + typeErr.Field
		}
		msg := fmt.Sprintf("%s has JSON type %s, expected %s", path, typeErr.Value, typeErr.Type)
		if isScalarKind(typeErr.Type.Kind()) {
			warns = append(warns, msg)
		} else {
			errs = append(errs, msg)
		}
	}
	return errs, warns
}

func isScalarKind(k reflect.Kind) bool {
	switch k {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct, reflect.Ptr, reflect.Interface:
		return false
	default:
		return true
	}
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "expected":
		return fmt.Sprintf("%s is missing", field)
	case "datetime":
		return fmt.Sprintf("%s must be an ISO date (YYYY-MM-DD), got %q", field, fe.Value())
	case "container_number":
		return fmt.Sprintf("%s %q is not a valid container number", field, fe.Value())
	case "unlocode":
		return fmt.Sprintf("%s %q is not a valid UN/LOCODE", field, fe.Value())
	case "oneof":
		return fmt.Sprintf("%s %v must be one of %s", field, fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s check", field, fe.Tag())
	}
}

// schemaSkeleton renders the JSON shape of a document type for prompts, with
// one placeholder element in every list.
func schemaSkeleton(docType models.DocumentType) (string, error) {
	schema, ok := newSchema(docType)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDocumentType, docType)
	}
	fillLists(reflect.ValueOf(schema).Elem())
	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}
	// documentType is validated from the raw map and is not a struct field.
	return strings.Replace(string(raw), "{", fmt.Sprintf("{\n  \"documentType\": %q,", docType), 1), nil
}

func fillLists(v reflect.Value) {
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		switch f.Kind() {
		case reflect.Slice:
			elem := reflect.New(f.Type().Elem()).Elem()
			if elem.Kind() == reflect.Struct {
				fillLists(elem)
			}
			f.Set(reflect.Append(f, elem))
		case reflect.Struct:
			fillLists(f)
		case reflect.Ptr:
			if f.Type().Elem().Kind() == reflect.Struct {
				f.Set(reflect.New(f.Type().Elem()))
				fillLists(f.Elem())
			}
		}
	}
}
