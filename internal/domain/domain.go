package domain

import (
	"time"
)

// Order lifecycle statuses.
const (
	StatusOrdered   = "ordered"
	StatusShipping  = "shipping"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
	StatusArchived  = "archived"
)

// Instrument lines.
const (
	TypeInnato  = "INNATO"
	TypeNatey   = "NATEY"
	TypeDouble  = "DOUBLE"
	TypeZen     = "ZEN"
	TypeOva     = "OVA"
	TypeCards   = "CARDS"
	TypeUnknown = "UNKNOWN"
)

// Color codes. CodeCards is a sentinel for non-instrument products.
const (
	ColorBlue        = "B"
	ColorSmokeBlack  = "SB"
	ColorTiger       = "T"
	ColorTerraBronze = "TB"
	ColorCopper      = "C"
	CodeCards        = "CARDS"
)

// Reference frequencies.
const (
	Freq432 = "432"
	Freq440 = "440"
	Freq64  = "64"
)

// DirectAttributes are the fields literally named for an attribute on a record.
type DirectAttributes struct {
	ItemType  string `json:"itemType,omitempty"`
	Tuning    string `json:"tuning,omitempty"`
	Color     string `json:"color,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

type SpecField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Order struct {
	ID               int64            `json:"id"`
	OrderNumber      string           `json:"orderNumber"`
	CustomerName     string           `json:"customerName,omitempty"`
	CustomerEmail    string           `json:"customerEmail,omitempty"`
	Specifications   []SpecField      `json:"specifications,omitempty"`
	Direct           DirectAttributes `json:"direct,omitempty"`
	IsReseller       bool             `json:"isReseller"`
	ResellerNickname string           `json:"resellerNickname,omitempty"`
	Archived         bool             `json:"archived"`
	Status           string           `json:"status" enum:"ordered,shipping,delivered,cancelled,archived"`
	Notes            string           `json:"notes,omitempty"`
	Stages           StageRecord      `json:"stages,omitempty"`
	CreatedAt        time.Time        `json:"createdAt" format:"date-time"`
}

// Bag flattens the order's free-form specification list into a key/value bag.
// Later fields with the same name win.
func (o Order) Bag() Specs {
	if len(o.Specifications) == 0 {
		return nil
	}
	bag := make(Specs, len(o.Specifications))
	for _, f := range o.Specifications {
		if f.Name == "" {
			continue
		}
		bag[f.Name] = f.Value
	}
	return bag
}

type OrderItem struct {
	ID               int64            `json:"id"`
	OrderID          OrderKey         `json:"orderId"`
	SerialNumber     string           `json:"serialNumber,omitempty"`
	Direct           DirectAttributes `json:"direct,omitempty"`
	Specifications   Specs            `json:"specifications,omitempty"`
	Stages           StageRecord      `json:"stages,omitempty"`
	Quantity         int              `json:"quantity,omitempty"`
	RefundedQuantity int              `json:"refundedQuantity,omitempty"`
	Archived         bool             `json:"archived"`
	Deleted          bool             `json:"deleted"`
}

// Fulfillable returns how many units still have to be produced. Legacy rows
// carry no quantity and count as one unit.
func (i OrderItem) Fulfillable() int {
	q := i.Quantity
	if q == 0 {
		q = 1
	}
	return q - i.RefundedQuantity
}

// SerialRecord is the authoritative attribute set for a catalogued serial number.
type SerialRecord struct {
	Type      string `json:"type,omitempty" yaml:"type"`
	Tuning    string `json:"tuning,omitempty" yaml:"tuning"`
	Color     string `json:"color,omitempty" yaml:"color"`
	Frequency string `json:"frequency,omitempty" yaml:"frequency"`
}

// AttributeSet holds exactly one resolved value per attribute. Empty
// TuningNote or Frequency means absent.
type AttributeSet struct {
	Type       string `json:"type"`
	TuningNote string `json:"tuningNote,omitempty"`
	ColorCode  string `json:"colorCode,omitempty"`
	Frequency  string `json:"frequency,omitempty"`
}

type Event struct {
	ID         string `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
