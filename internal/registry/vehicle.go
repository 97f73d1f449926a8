// Package registry is the client side of the vehicle registry HTTP API and
// the record types it exchanges.
package registry

import (
	"errors"
	"fmt"
)

// Vehicle is a registered vehicle as served by the registry.
type Vehicle struct {
	ID               int64  `json:"id"`
	Plate            string `json:"plate"`
	OwnerName        string `json:"ownerName"`
	OwnerPhone       string `json:"ownerPhone"`
	CarModel         string `json:"carModel"`
	CarYear          string `json:"carYear"`
	OwnerPhoto       string `json:"ownerPhoto"`
	CarPhoto         string `json:"carPhoto"`
	RegistrationDate string `json:"registrationDate"`
}

// CreateVehicleRequest is the POST /vehicles body. Photos are embedded image
// data (data URLs or base64).
type CreateVehicleRequest struct {
	Plate      string `json:"plate"`
	OwnerName  string `json:"ownerName"`
	OwnerPhone string `json:"ownerPhone"`
	CarModel   string `json:"carModel"`
	CarYear    string `json:"carYear"`
	OwnerPhoto string `json:"ownerPhoto"`
	CarPhoto   string `json:"carPhoto"`
}

// CreateVehicleResponse acknowledges a created vehicle.
type CreateVehicleResponse struct {
	Message          string `json:"message"`
	ID               int64  `json:"id"`
	RegistrationDate string `json:"registrationDate"`
}

// YearCount is one row of the car-year histogram.
type YearCount struct {
	Year  string `json:"year"`
	Count int64  `json:"count"`
}

// Stats summarizes the registry contents.
type Stats struct {
	TotalVehicles int64       `json:"totalVehicles"`
	YearStats     []YearCount `json:"yearStats"`
}

// Registry outcomes that are answers rather than failures.
var (
	ErrNotFound       = errors.New("vehicle not found")
	ErrDuplicatePlate = errors.New("plate already registered")
)

// ErrMalformedResponse marks a registry reply that was not JSON.
var ErrMalformedResponse = errors.New("malformed registry response")

// ValidationError is a rejected create request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid vehicle: %s: %s", e.Field, e.Message)
	}
	return "invalid vehicle: " + e.Message
}

// TransportError is a network, protocol or parse failure talking to the
// registry. It never means the plate is unregistered.
type TransportError struct {
	Operation  string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("registry %s: status %d: %v", e.Operation, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("registry %s: %v", e.Operation, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is a registry transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
