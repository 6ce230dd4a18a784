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

package clienthandler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/smartgarden/gardenbroker/internal/broker"
	"github.com/smartgarden/gardenbroker/internal/idgen"
	"github.com/smartgarden/gardenbroker/internal/metrics"
	"github.com/smartgarden/gardenbroker/internal/model"
	"github.com/smartgarden/gardenbroker/internal/transport"
	"github.com/smartgarden/gardenbroker/internal/validation"
)

func handleHelloUser(ctx context.Context, _ *broker.Broker, ch *transport.Channel, _ transport.Frame) {
	_ = ch.SendTyped(ctx, "WELCOME", map[string]string{"channelId": ch.ID()})
}

type loginRequest struct {
	Email string `json:"email"`
}

// handleLogin attaches the channel to a user's email. Password verification
// itself is an external collaborator's concern (§1 Non-goals); this handler
// only performs the attach step the Session Registry exposes, trusting that
// the caller has already been authenticated upstream.
func handleLogin(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	var req loginRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "LOGIN_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	email := model.NormalizeEmail(req.Email)
	u, err := b.Store.Users().GetByEmail(ctx, email)
	if err != nil {
		notFoundFail(ctx, ch, "LOGIN_FAIL", "no such user", err)
		return
	}
	b.Registry.AttachClient(ch, email)
	metrics.AttachedClients.Inc()
	_ = ch.SendTyped(ctx, "LOGIN_SUCCESS", userPayload(u))
}

func userPayload(u *model.User) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"email":       u.Email,
		"displayName": u.DisplayName,
		"city":        u.LocationCity,
		"country":     u.LocationCountry,
	}
}

func gardenPayload(g *model.Garden) map[string]any {
	return map[string]any{
		"id":          g.ID,
		"name":        g.Name,
		"adminUserId": g.AdminUserID,
		"inviteCode":  g.InviteCode,
		"country":     g.Country,
		"city":        g.City,
		"maxMembers":  g.MaxMembers,
	}
}

type createGardenRequest struct {
	Name       string `json:"name"`
	Country    string `json:"country"`
	City       string `json:"city"`
	MaxMembers int    `json:"maxMembers"`
}

func handleCreateGarden(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "CREATE_GARDEN_FAIL")
	if !ok {
		return
	}
	var req createGardenRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "CREATE_GARDEN_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}

	allErrs := validation.ValidateGardenName(req.Name, field.NewPath("name"))
	allErrs = append(allErrs, validation.ValidateLocation(req.Country, req.City, field.NewPath("location"))...)
	if len(allErrs) > 0 {
		_ = ch.SendTyped(ctx, "CREATE_GARDEN_FAIL", transport.FailPayload{Reason: allErrs.ToAggregate().Error(), Code: "VALIDATION_ERROR"})
		return
	}

	existing, err := b.Store.Gardens().ListForAdmin(ctx, u.ID)
	if err != nil {
		_ = ch.SendTyped(ctx, "CREATE_GARDEN_FAIL", transport.FailPayload{Reason: "lookup failed", Code: transport.CodeDatabase})
		return
	}
	if len(existing) > 0 {
		_ = ch.SendTyped(ctx, "CREATE_GARDEN_FAIL", transport.FailPayload{Reason: "user already administers an active garden", Code: "USER_ALREADY_ADMIN"})
		return
	}

	code, err := idgen.GenerateInviteCode(ctx, b.Store.Gardens().InviteCodeTaken)
	if err != nil {
		_ = ch.SendTyped(ctx, "CREATE_GARDEN_FAIL", transport.FailPayload{Reason: "could not allocate an invite code", Code: transport.CodeDatabase})
		return
	}

	maxMembers := req.MaxMembers
	if maxMembers <= 0 {
		maxMembers = 10
	}
	g := &model.Garden{
		ID:          uuid.NewString(),
		Name:        req.Name,
		AdminUserID: u.ID,
		InviteCode:  code,
		Country:     req.Country,
		City:        req.City,
		Active:      true,
		MaxMembers:  maxMembers,
	}
	if err := b.Store.Gardens().Create(ctx, g); err != nil {
		_ = ch.SendTyped(ctx, "CREATE_GARDEN_FAIL", transport.FailPayload{Reason: "could not create garden", Code: transport.CodeDatabase})
		return
	}
	if err := b.Store.Memberships().Upsert(ctx, &model.Membership{UserID: u.ID, GardenID: g.ID, Role: model.RoleAdmin, Active: true}); err != nil {
		_ = ch.SendTyped(ctx, "CREATE_GARDEN_FAIL", transport.FailPayload{Reason: "could not attach admin membership", Code: transport.CodeDatabase})
		return
	}
	_ = ch.SendTyped(ctx, "CREATE_GARDEN_SUCCESS", gardenPayload(g))
}

func handleGetUserGardens(ctx context.Context, b *broker.Broker, ch *transport.Channel, _ transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "GET_USER_GARDENS_FAIL")
	if !ok {
		return
	}
	gardens, err := b.Store.Memberships().ListGardensForUser(ctx, u.ID)
	if err != nil {
		_ = ch.SendTyped(ctx, "GET_USER_GARDENS_FAIL", transport.FailPayload{Reason: "lookup failed", Code: transport.CodeDatabase})
		return
	}
	payload := make([]map[string]any, 0, len(gardens))
	for _, g := range gardens {
		payload = append(payload, gardenPayload(g))
	}
	_ = ch.SendTyped(ctx, "GET_USER_GARDENS_SUCCESS", map[string]any{"gardens": payload})
}

type gardenScopedRequest struct {
	GardenID string `json:"gardenId"`
}

func handleGetGardenDetails(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "GET_GARDEN_DETAILS_FAIL")
	if !ok {
		return
	}
	var req gardenScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "GET_GARDEN_DETAILS_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	if !requireActiveMembership(ctx, b, ch, u.ID, req.GardenID, "GET_GARDEN_DETAILS_FAIL") {
		return
	}
	g, err := b.Store.Gardens().Get(ctx, req.GardenID)
	if err != nil {
		notFoundFail(ctx, ch, "GET_GARDEN_DETAILS_FAIL", "garden not found", err)
		return
	}
	_ = ch.SendTyped(ctx, "GET_GARDEN_DETAILS_SUCCESS", gardenPayload(g))
}

type searchGardenRequest struct {
	InviteCode string `json:"inviteCode"`
}

func handleSearchGardenByCode(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	if _, ok := requireAttached(ctx, b, ch, "SEARCH_GARDEN_BY_CODE_FAIL"); !ok {
		return
	}
	var req searchGardenRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "SEARCH_GARDEN_BY_CODE_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	g, err := b.Store.Gardens().GetByInviteCode(ctx, req.InviteCode)
	if err != nil {
		notFoundFail(ctx, ch, "SEARCH_GARDEN_BY_CODE_FAIL", "garden not found", err)
		return
	}
	_ = ch.SendTyped(ctx, "SEARCH_GARDEN_BY_CODE_SUCCESS", gardenPayload(g))
}

func handleJoinGarden(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "JOIN_GARDEN_FAIL")
	if !ok {
		return
	}
	var req searchGardenRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "JOIN_GARDEN_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	g, err := b.Store.Gardens().GetByInviteCode(ctx, req.InviteCode)
	if err != nil {
		notFoundFail(ctx, ch, "JOIN_GARDEN_FAIL", "garden not found", err)
		return
	}
	if active, err := b.Store.Memberships().ActiveForUser(ctx, u.ID); err == nil && active != nil {
		if active.GardenID == g.ID {
			_ = ch.SendTyped(ctx, "JOIN_GARDEN_FAIL", transport.FailPayload{Reason: "already a member of this garden", Code: "ALREADY_IN_GARDEN"})
			return
		}
		_ = ch.SendTyped(ctx, "JOIN_GARDEN_FAIL", transport.FailPayload{Reason: "already an active member of another garden", Code: "USER_ALREADY_MEMBER"})
		return
	}
	// Upsert reactivates a previously-left membership row rather than
	// inserting a duplicate (§8's round-trip law).
	if err := b.Store.Memberships().Upsert(ctx, &model.Membership{UserID: u.ID, GardenID: g.ID, Role: model.RoleMember, Active: true}); err != nil {
		_ = ch.SendTyped(ctx, "JOIN_GARDEN_FAIL", transport.FailPayload{Reason: "could not join garden", Code: transport.CodeDatabase})
		return
	}
	_ = ch.SendTyped(ctx, "JOIN_GARDEN_SUCCESS", gardenPayload(g))
}

func handleGetGardenMembers(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "GET_GARDEN_MEMBERS_FAIL")
	if !ok {
		return
	}
	var req gardenScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "GET_GARDEN_MEMBERS_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	if !requireActiveMembership(ctx, b, ch, u.ID, req.GardenID, "GET_GARDEN_MEMBERS_FAIL") {
		return
	}
	members, err := b.Store.Memberships().ActiveMembersOf(ctx, req.GardenID)
	if err != nil {
		_ = ch.SendTyped(ctx, "GET_GARDEN_MEMBERS_FAIL", transport.FailPayload{Reason: "lookup failed", Code: transport.CodeDatabase})
		return
	}
	payload := make([]map[string]any, 0, len(members))
	for _, m := range members {
		mu, err := b.Store.Users().GetByID(ctx, m.UserID)
		if err != nil {
			continue
		}
		payload = append(payload, map[string]any{
			"user": userPayload(mu),
			"role": m.Role,
		})
	}
	_ = ch.SendTyped(ctx, "GET_GARDEN_MEMBERS_SUCCESS", map[string]any{"members": payload})
}

func handleLeaveGarden(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "LEAVE_GARDEN_FAIL")
	if !ok {
		return
	}
	var req gardenScopedRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "LEAVE_GARDEN_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	m, err := b.Store.Memberships().Get(ctx, u.ID, req.GardenID)
	if err != nil || !m.Active {
		_ = ch.SendTyped(ctx, "LEAVE_GARDEN_FAIL", transport.FailPayload{Reason: "not an active member of this garden", Code: "NOT_MEMBER"})
		return
	}
	if m.Role == model.RoleAdmin {
		_ = ch.SendTyped(ctx, "LEAVE_GARDEN_FAIL", transport.FailPayload{Reason: "the admin cannot leave their own garden", Code: "ADMIN_CANNOT_LEAVE"})
		return
	}
	if err := b.Store.Memberships().SetActive(ctx, u.ID, req.GardenID, false); err != nil {
		_ = ch.SendTyped(ctx, "LEAVE_GARDEN_FAIL", transport.FailPayload{Reason: "could not leave garden", Code: transport.CodeDatabase})
		return
	}
	_ = ch.SendTyped(ctx, "LEAVE_GARDEN_SUCCESS", map[string]string{"gardenId": req.GardenID})
}

type updateGardenRequest struct {
	GardenID string `json:"gardenId"`
	Name     string `json:"name"`
	Country  string `json:"country"`
	City     string `json:"city"`
}

func handleUpdateGarden(ctx context.Context, b *broker.Broker, ch *transport.Channel, f transport.Frame) {
	u, ok := requireAttached(ctx, b, ch, "UPDATE_GARDEN_FAIL")
	if !ok {
		return
	}
	var req updateGardenRequest
	if err := f.Decode(&req); err != nil {
		_ = ch.SendTyped(ctx, "UPDATE_GARDEN_FAIL", transport.FailPayload{Reason: "malformed request", Code: transport.CodeInvalidJSON})
		return
	}
	m, err := b.Store.Memberships().Get(ctx, u.ID, req.GardenID)
	if err != nil || !m.Active || m.Role != model.RoleAdmin {
		_ = ch.SendTyped(ctx, "UPDATE_GARDEN_FAIL", transport.FailPayload{Reason: "only the admin may update this garden", Code: "NOT_MEMBER"})
		return
	}
	if errs := validation.ValidateLocation(req.Country, req.City, field.NewPath("location")); len(errs) > 0 {
		_ = ch.SendTyped(ctx, "UPDATE_GARDEN_FAIL", transport.FailPayload{Reason: errs.ToAggregate().Error(), Code: "INVALID_LOCATION"})
		return
	}
	g, err := b.Store.Gardens().Get(ctx, req.GardenID)
	if err != nil {
		notFoundFail(ctx, ch, "UPDATE_GARDEN_FAIL", "garden not found", err)
		return
	}
	if req.Name != "" {
		g.Name = req.Name
	}
	g.Country, g.City = req.Country, req.City
	if err := b.Store.Gardens().Update(ctx, g); err != nil {
		_ = ch.SendTyped(ctx, "UPDATE_GARDEN_FAIL", transport.FailPayload{Reason: "could not update garden", Code: transport.CodeDatabase})
		return
	}
	_ = ch.SendTyped(ctx, "UPDATE_GARDEN_SUCCESS", gardenPayload(g))
	pushLocationToController(ctx, b, g)
}

// pushLocationToController notifies the garden's controller of new
// coordinates for every plant, best-effort, per §4.5's location-update
// side effect.
func pushLocationToController(ctx context.Context, b *broker.Broker, g *model.Garden) {
	cch := b.Registry.ControllerByGarden(g.ID)
	if cch == nil {
		return
	}
	plants, err := b.Store.Plants().ListForGarden(ctx, g.ID)
	if err != nil {
		return
	}
	for _, p := range plants {
		_ = cch.SendTyped(ctx, "UPDATE_PLANT_LOCATION", map[string]any{
			"plant_id": p.ID,
			"country":  g.Country,
			"city":     g.City,
			"at":       time.Now().UTC(),
		})
	}
}
