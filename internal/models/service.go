package models

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ServiceStatus string

const (
	ServiceStatusActive   ServiceStatus = "active"
	ServiceStatusInactive ServiceStatus = "inactive"
	ServiceStatusPending  ServiceStatus = "pending"
)

var ServiceTypes = []string{"tractor", "cultivator", "worker_individual", "worker_group", "other"}

var timeRe = regexp.MustCompile(`^([0-1][0-9]|2[0-3]):[0-5][0-9]$`)

// Location maps to a GeoJSON Point so Mongo's 2dsphere index can serve
// $near queries. Coordinates are [longitude, latitude].
type Location struct {
	Type        string    `bson:"type" json:"type"`
	Coordinates []float64 `bson:"coordinates" json:"coordinates"`
	Address     string    `bson:"address,omitempty" json:"address,omitempty"`
	Village     string    `bson:"village,omitempty" json:"village,omitempty"`
	District    string    `bson:"district,omitempty" json:"district,omitempty"`
	State       string    `bson:"state,omitempty" json:"state,omitempty"`
}

func (l Location) Validate() error {
	if len(l.Coordinates) != 2 {
		return ValidationError("coordinates must be [longitude, latitude]")
	}
	lng, lat := l.Coordinates[0], l.Coordinates[1]
	if lng < -180 || lng > 180 {
		return ValidationError("longitude must be between -180 and 180")
	}
	if lat < -90 || lat > 90 {
		return ValidationError("latitude must be between -90 and 90")
	}
	return nil
}

// ScheduleEntry is one weekday's open window. An entry with no start/end
// times means the whole day is open.
type ScheduleEntry struct {
	Day         string `bson:"day" json:"day"`
	StartTime   string `bson:"startTime,omitempty" json:"startTime,omitempty"`
	EndTime     string `bson:"endTime,omitempty" json:"endTime,omitempty"`
	IsAvailable bool   `bson:"isAvailable" json:"isAvailable"`
}

// weekdayNames matches time.Weekday.String(), which IsBookableAt uses to look
// up the entry for a date.
var weekdayNames = map[string]bool{
	"Sunday": true, "Monday": true, "Tuesday": true, "Wednesday": true,
	"Thursday": true, "Friday": true, "Saturday": true,
}

type Availability struct {
	IsAvailable      bool            `bson:"isAvailable" json:"isAvailable"`
	Schedule         []ScheduleEntry `bson:"schedule" json:"schedule"`
	UnavailableDates []time.Time     `bson:"unavailableDates" json:"unavailableDates"`
}

func (a Availability) Validate() error {
	seen := make(map[string]bool, len(a.Schedule))
	for _, entry := range a.Schedule {
		if !weekdayNames[entry.Day] {
			return ValidationError("schedule entry day %q is not a weekday name (Monday..Sunday)", entry.Day)
		}
		if seen[entry.Day] {
			return ValidationError("duplicate schedule entry for %s", entry.Day)
		}
		seen[entry.Day] = true
		if (entry.StartTime == "") != (entry.EndTime == "") {
			return ValidationError("schedule entry for %s must set both start and end times or neither", entry.Day)
		}
		if entry.StartTime != "" {
			if !timeRe.MatchString(entry.StartTime) || !timeRe.MatchString(entry.EndTime) {
				return ValidationError("schedule entry for %s has invalid time format (expected HH:MM)", entry.Day)
			}
			if entry.EndTime <= entry.StartTime {
				return ValidationError("schedule entry for %s must end after it starts", entry.Day)
			}
		}
	}
	return nil
}

type ServiceReview struct {
	FarmerID string    `bson:"farmerId" json:"farmerId"`
	Rating   int       `bson:"rating" json:"rating" validate:"required,min=1,max=5"`
	Comment  string    `bson:"comment,omitempty" json:"comment,omitempty"`
	Date     time.Time `bson:"date" json:"date"`
}

// Specifications carries the machine fields for tractors/cultivators and the
// worker fields for labor services. The boundary only accepts the structured
// form; serialized strings are rejected during binding.
type Specifications struct {
	ModelYear         string       `bson:"modelYear,omitempty" json:"modelYear,omitempty"`
	EnginePower       string       `bson:"enginePower,omitempty" json:"enginePower,omitempty"`
	FuelType          string       `bson:"fuelType,omitempty" json:"fuelType,omitempty" validate:"omitempty,oneof=Diesel Petrol Electric Other"`
	Transmission      string       `bson:"transmission,omitempty" json:"transmission,omitempty" validate:"omitempty,oneof=Manual Automatic Semi-Automatic"`
	Features          []string     `bson:"features,omitempty" json:"features,omitempty"`
	MaintenanceStatus string       `bson:"maintenanceStatus,omitempty" json:"maintenanceStatus,omitempty" validate:"omitempty,oneof=Excellent Good Fair Poor"`
	LastServiceDate   *time.Time   `bson:"lastServiceDate,omitempty" json:"lastServiceDate,omitempty"`
	Experience        string       `bson:"experience,omitempty" json:"experience,omitempty"`
	Skills            []string     `bson:"skills,omitempty" json:"skills,omitempty"`
	TeamSize          int          `bson:"teamSize,omitempty" json:"teamSize,omitempty"`
	TeamMembers       []TeamMember `bson:"teamMembers,omitempty" json:"teamMembers,omitempty"`
}

type TeamMember struct {
	Name string `bson:"name" json:"name"`
	Role string `bson:"role,omitempty" json:"role,omitempty"`
}

type Service struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	LaborerID      string             `bson:"laborerId" json:"laborerId"`
	ServiceType    string             `bson:"serviceType" json:"serviceType" validate:"required,oneof=tractor cultivator worker_individual worker_group other"`
	Title          string             `bson:"title" json:"title" validate:"required,max=200"`
	Description    string             `bson:"description,omitempty" json:"description,omitempty" validate:"max=2000"`
	PricePerHour   float64            `bson:"pricePerHour" json:"pricePerHour" validate:"gte=0"`
	PricePerDay    *float64           `bson:"pricePerDay,omitempty" json:"pricePerDay,omitempty"`
	Location       Location           `bson:"location" json:"location"`
	Availability   Availability       `bson:"availability" json:"availability"`
	Images         []string           `bson:"images" json:"images"`
	Specifications Specifications     `bson:"specifications,omitempty" json:"specifications,omitempty"`
	Rating         float64            `bson:"rating" json:"rating"`
	TotalBookings  int64              `bson:"totalBookings" json:"totalBookings"`
	Reviews        []ServiceReview    `bson:"reviews" json:"reviews"`
	Status         ServiceStatus      `bson:"status" json:"status"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}

func (s *Service) Validate() error {
	if err := Validate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if s.PricePerDay != nil && *s.PricePerDay < 0 {
		return ValidationError("pricePerDay cannot be negative")
	}
	if err := s.Location.Validate(); err != nil {
		return err
	}
	return s.Availability.Validate()
}

// minutesOfDay converts "HH:MM" to minutes since midnight. Callers must have
// validated the format first.
func minutesOfDay(hhmm string) int {
	h := int(hhmm[0]-'0')*10 + int(hhmm[1]-'0')
	m := int(hhmm[3]-'0')*10 + int(hhmm[4]-'0')
	return h*60 + m
}

// ValidateTimeWindow checks an HH:MM pair and returns the window length in
// minutes.
func ValidateTimeWindow(startTime, endTime string) (int, error) {
	if !timeRe.MatchString(startTime) || !timeRe.MatchString(endTime) {
		return 0, ValidationError("times must be in HH:MM format")
	}
	start, end := minutesOfDay(startTime), minutesOfDay(endTime)
	if end <= start {
		return 0, ValidationError("end time must be after start time")
	}
	return end - start, nil
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// IsBookableAt reports whether the service can be booked for the given date
// and time window. It assumes the window is already validated; the decision
// is pure and touches no storage.
func (s *Service) IsBookableAt(date time.Time, startTime, endTime string) bool {
	if s.Status != ServiceStatusActive || !s.Availability.IsAvailable {
		return false
	}

	for _, blocked := range s.Availability.UnavailableDates {
		if sameCalendarDay(blocked, date) {
			return false
		}
	}

	day := date.UTC().Weekday().String()
	var entry *ScheduleEntry
	for i := range s.Availability.Schedule {
		if s.Availability.Schedule[i].Day == day {
			entry = &s.Availability.Schedule[i]
			break
		}
	}
	if entry == nil || !entry.IsAvailable {
		return false
	}

	// An entry without times opens the whole day.
	if entry.StartTime != "" && entry.EndTime != "" {
		reqStart, reqEnd := minutesOfDay(startTime), minutesOfDay(endTime)
		availStart, availEnd := minutesOfDay(entry.StartTime), minutesOfDay(entry.EndTime)
		if reqStart < availStart || reqEnd > availEnd {
			return false
		}
	}

	return true
}

// RecomputeRating derives the mean of all review ratings rounded to one
// decimal place, or 0 when there are no reviews. The Mongo repo performs the
// same computation inside the review-append pipeline; this is the in-memory
// counterpart applied to already-loaded aggregates.
func (s *Service) RecomputeRating() {
	if len(s.Reviews) == 0 {
		s.Rating = 0
		return
	}
	var sum int
	for _, r := range s.Reviews {
		sum += r.Rating
	}
	s.Rating = math.Round(float64(sum)/float64(len(s.Reviews))*10) / 10
}

// Sanitize trims free-text fields before validation.
func (s *Service) Sanitize() {
	s.Title = strings.TrimSpace(s.Title)
	s.Description = strings.TrimSpace(s.Description)
	s.Location.Address = strings.TrimSpace(s.Location.Address)
	s.Location.Village = strings.TrimSpace(s.Location.Village)
	s.Location.District = strings.TrimSpace(s.Location.District)
	s.Location.State = strings.TrimSpace(s.Location.State)
}
