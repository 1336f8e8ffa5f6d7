package models

import "fmt"

type OrderStatus string

const (
	StatusConfirmed       OrderStatus = "confirmed"
	StatusWarehouse       OrderStatus = "warehouse"
	StatusAirplane        OrderStatus = "airplane"
	StatusAtabuyWarehouse OrderStatus = "atabuy_warehouse"
	StatusDelivered       OrderStatus = "delivered"
	StatusCancelled       OrderStatus = "cancelled"

	// StatusUnknown stands in for any value the server sends outside the closed set.
	StatusUnknown OrderStatus = "unknown"
)

var pipeline = []OrderStatus{
	StatusConfirmed,
	StatusWarehouse,
	StatusAirplane,
	StatusAtabuyWarehouse,
	StatusDelivered,
}

// StatusInfo is presentation metadata for a status. None of it takes part in
// transition decisions.
type StatusInfo struct {
	Key        OrderStatus `json:"key"`
	Label      string      `json:"label"`
	Text       string      `json:"text"`
	Icon       string      `json:"icon"`
	Color      string      `json:"color"`
	Background string      `json:"background"`
}

var statusInfo = map[OrderStatus]StatusInfo{
	StatusConfirmed: {
		Key: StatusConfirmed, Label: "Təsdiqləndi", Text: "Sifariş təsdiqləndi",
		Icon: "check-circle", Color: "#3B82F6", Background: "#EFF6FF",
	},
	StatusWarehouse: {
		Key: StatusWarehouse, Label: "Anbarda", Text: "Anbardan çıxdı",
		Icon: "warehouse", Color: "#F59E0B", Background: "#FEF3C7",
	},
	StatusAirplane: {
		Key: StatusAirplane, Label: "Təyyarədə", Text: "Təyyarəyə verildi",
		Icon: "plane", Color: "#8B5CF6", Background: "#F3E8FF",
	},
	StatusAtabuyWarehouse: {
		Key: StatusAtabuyWarehouse, Label: "AtaBuy Anbarı", Text: "AtaBuy anbarına gətirildi",
		Icon: "package", Color: "#EC4899", Background: "#FCE7F3",
	},
	StatusDelivered: {
		Key: StatusDelivered, Label: "Çatdırıldı", Text: "Ünvana çatdırıldı",
		Icon: "truck", Color: "#23B45D", Background: "#E8F5E9",
	},
	StatusCancelled: {
		Key: StatusCancelled, Label: "Ləğv edildi", Text: "Ləğv edildi",
		Icon: "x-circle", Color: "#DC2626", Background: "#FEE2E2",
	},
}

// Describe returns display metadata for s. Unrecognized statuses get the
// confirmed metadata.
func Describe(s OrderStatus) StatusInfo {
	if info, ok := statusInfo[s]; ok {
		return info
	}
	return statusInfo[StatusConfirmed]
}

// Ordering returns the pipeline stages left to right. Cancelled is a side lane
// and is not part of it.
func Ordering() []OrderStatus {
	out := make([]OrderStatus, len(pipeline))
	copy(out, pipeline)
	return out
}

// Position returns the pipeline index of s, or -1.
func Position(s OrderStatus) int {
	for i, p := range pipeline {
		if p == s {
			return i
		}
	}
	return -1
}

func ParseStatus(raw string) (OrderStatus, bool) {
	s := OrderStatus(raw)
	if s.Known() {
		return s, true
	}
	return StatusUnknown, false
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) Known() bool {
	_, ok := statusInfo[s]
	return ok
}

func (s OrderStatus) Normalize() OrderStatus {
	if s.Known() {
		return s
	}
	return StatusUnknown
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether an admin may move an order from one status to
// another. Pipeline stages may be corrected in either direction.
func CanTransition(from, to OrderStatus) error {
	if !to.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	switch {
	case from == StatusCancelled && to != StatusCancelled:
		return fmt.Errorf("%w: order is cancelled", ErrInvalidTransition)
	case to == StatusCancelled && from.IsTerminal() && from != StatusCancelled:
		return fmt.Errorf("%w: cannot cancel a %s order", ErrInvalidTransition, from)
	}
	return nil
}

var cancellationReasons = []string{
	"Müştəri sifarişdən imtina etdi",
	"Məhsul stokda yoxdur",
	"Ödəniş problemi",
	"Çatdırılma ünvanı yanlışdır",
	"Müştəri əlaqə saxlamadı",
	"Texniki xəta",
	"Digər səbəb",
}

func CancellationReasons() []string {
	out := make([]string, len(cancellationReasons))
	copy(out, cancellationReasons)
	return out
}
