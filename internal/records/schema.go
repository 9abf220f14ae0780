package records

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jun/brickmap/internal/adapter"
	"github.com/jun/brickmap/internal/model"
	"github.com/jun/brickmap/internal/resolver"
)

// Tab names of the spreadsheet.
const (
	TabPharmacies = "Pharmacies"
	TabDoctors    = "Doctors"
)

// RowWindow is the maximum number of data rows read from a tab.
const RowWindow = 10000

// Column order is part of the sheet format and must not change.
var (
	PharmacyHeader = []string{"id", "name", "address", "city", "postalCode", "brick", "phone", "latitude", "longitude", "notes", "createdAt"}
	DoctorHeader   = []string{"id", "name", "specialty", "address", "city", "brick", "phone", "latitude", "longitude", "createdAt"}
)

const (
	phID = iota
	phName
	phAddress
	phCity
	phPostalCode
	phBrick
	phPhone
	phLatitude
	phLongitude
	phNotes
	phCreatedAt
)

const (
	drID = iota
	drName
	drSpecialty
	drAddress
	drCity
	drBrick
	drPhone
	drLatitude
	drLongitude
	drCreatedAt
)

// Partitions returns the tabs created with a new spreadsheet.
func Partitions() []resolver.Partition {
	return []resolver.Partition{
		{Name: TabPharmacies, Header: PharmacyHeader},
		{Name: TabDoctors, Header: DoctorHeader},
	}
}

// dataRange covers the data rows of a tab with width columns.
func dataRange(width int) string {
	return fmt.Sprintf("A2:%s%d", adapter.ColumnName(width), RowWindow+1)
}

// appendRange is the table the appended row is added to.
func appendRange(width int) string {
	return "A:" + adapter.ColumnName(width)
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// number parses a numeric cell. Empty, unparseable and non-finite values are absent.
func number(row []string, i int) *float64 {
	s := strings.TrimSpace(cell(row, i))
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func formatNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func pharmacyFromRow(row []string) model.Pharmacy {
	return model.Pharmacy{
		ID:         cell(row, phID),
		Name:       cell(row, phName),
		Address:    cell(row, phAddress),
		City:       cell(row, phCity),
		PostalCode: cell(row, phPostalCode),
		Brick:      cell(row, phBrick),
		Phone:      cell(row, phPhone),
		Latitude:   number(row, phLatitude),
		Longitude:  number(row, phLongitude),
		Notes:      cell(row, phNotes),
		CreatedAt:  cell(row, phCreatedAt),
	}
}

func pharmacyToRow(p model.Pharmacy) []string {
	row := make([]string, len(PharmacyHeader))
	row[phID] = p.ID
	row[phName] = p.Name
	row[phAddress] = p.Address
	row[phCity] = p.City
	row[phPostalCode] = p.PostalCode
	row[phBrick] = p.Brick
	row[phPhone] = p.Phone
	row[phLatitude] = formatNumber(p.Latitude)
	row[phLongitude] = formatNumber(p.Longitude)
	row[phNotes] = p.Notes
	row[phCreatedAt] = p.CreatedAt
	return row
}

func doctorFromRow(row []string) model.Doctor {
	return model.Doctor{
		ID:        cell(row, drID),
		Name:      cell(row, drName),
		Specialty: cell(row, drSpecialty),
		Address:   cell(row, drAddress),
		City:      cell(row, drCity),
		Brick:     cell(row, drBrick),
		Phone:     cell(row, drPhone),
		Latitude:  number(row, drLatitude),
		Longitude: number(row, drLongitude),
		CreatedAt: cell(row, drCreatedAt),
	}
}

func doctorToRow(d model.Doctor) []string {
	row := make([]string, len(DoctorHeader))
	row[drID] = d.ID
	row[drName] = d.Name
	row[drSpecialty] = d.Specialty
	row[drAddress] = d.Address
	row[drCity] = d.City
	row[drBrick] = d.Brick
	row[drPhone] = d.Phone
	row[drLatitude] = formatNumber(d.Latitude)
	row[drLongitude] = formatNumber(d.Longitude)
	row[drCreatedAt] = d.CreatedAt
	return row
}
