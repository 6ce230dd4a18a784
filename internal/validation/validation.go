// Copyright 2024 The Smart Garden Authors. This file is licensed under the Apache Software License, v. 2
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package validation holds field-path validation for the requests the
// Client Protocol Handler accepts, in the same field.ErrorList idiom the
// teacher uses for its API types.
package validation

import (
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/smartgarden/gardenbroker/internal/model"
)

// ValidateGardenName rejects blank or overlong garden names.
func ValidateGardenName(name string, fldPath *field.Path) field.ErrorList {
	allErrs := field.ErrorList{}
	if strings.TrimSpace(name) == "" {
		allErrs = append(allErrs, field.Required(fldPath, "garden name must not be empty"))
	} else if len(name) > 100 {
		allErrs = append(allErrs, field.TooLong(fldPath, name, 100))
	}
	return allErrs
}

// ValidateLocation requires both country and city to be non-empty when
// either is supplied, matching the INVALID_LOCATION failure reason in §4.5.
func ValidateLocation(country, city string, fldPath *field.Path) field.ErrorList {
	allErrs := field.ErrorList{}
	if (country == "") != (city == "") {
		allErrs = append(allErrs, field.Invalid(fldPath, city, "country and city must both be set or both be empty"))
	}
	return allErrs
}

// ValidatePlant checks the invariants §3 lists for a Plant at creation time.
func ValidatePlant(p *model.Plant, fldPath *field.Path) field.ErrorList {
	allErrs := field.ErrorList{}
	if strings.TrimSpace(p.DisplayName) == "" {
		allErrs = append(allErrs, field.Required(fldPath.Child("displayName"), "plant name must not be empty"))
	}
	if p.IdealMoisture < 0 || p.IdealMoisture > 100 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("idealMoisture"), p.IdealMoisture, "must be between 0 and 100"))
	}
	if p.WaterLimitL <= 0 {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("waterLimit"), p.WaterLimitL, "must be positive"))
	}
	return allErrs
}

// ValidateSchedule rejects a schedule with no days or a malformed time.
func ValidateSchedule(s model.Schedule, fldPath *field.Path) field.ErrorList {
	allErrs := field.ErrorList{}
	if len(s.Days) == 0 {
		allErrs = append(allErrs, field.Required(fldPath.Child("days"), "at least one day is required"))
	}
	if _, err := time.Parse("15:04", s.Time); err != nil {
		allErrs = append(allErrs, field.Invalid(fldPath.Child("time"), s.Time, "must be HH:MM"))
	}
	return allErrs
}
