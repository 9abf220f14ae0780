package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/brickmap/internal/auth"
	"github.com/jun/brickmap/internal/model"
)

// RecordsHandler serves the spreadsheet handle and the pharmacy and doctor
// records of the caller's profile.
type RecordsHandler struct {
	profiles  *Profiles
	jwtSecret string
}

// NewRecordsHandler creates a new RecordsHandler.
func NewRecordsHandler(profiles *Profiles, jwtSecret string) *RecordsHandler {
	return &RecordsHandler{profiles: profiles, jwtSecret: jwtSecret}
}

func unauthorized() events.APIGatewayProxyResponse {
	return events.APIGatewayProxyResponse{StatusCode: http.StatusUnauthorized, Body: "Unauthorized"}
}

// profile returns the caller's Profile and a context carrying its ID.
func (h *RecordsHandler) profile(ctx context.Context, req events.APIGatewayProxyRequest) (context.Context, *Profile, bool) {
	id, err := GetProfileID(req, h.jwtSecret)
	if err != nil {
		return ctx, nil, false
	}
	return auth.WithProfile(ctx, id), h.profiles.Get(id), true
}

// Resource resolves the spreadsheet, creating it on first use.
func (h *RecordsHandler) Resource(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, prof, ok := h.profile(ctx, req)
	if !ok {
		return unauthorized(), nil
	}
	id, err := prof.Resolver.Resolve(ctx)
	if err != nil {
		return errorResponse("resolve", err), nil
	}
	return jsonResponse(http.StatusOK, map[string]string{"spreadsheetId": id}), nil
}

// ResetResource forgets the cached spreadsheet handle. The next Resolve
// searches again.
func (h *RecordsHandler) ResetResource(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, prof, ok := h.profile(ctx, req)
	if !ok {
		return unauthorized(), nil
	}
	if err := prof.Manager.ClearResource(ctx); err != nil {
		return errorResponse("reset resource", err), nil
	}
	return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}, nil
}

// Dataset returns both tabs.
func (h *RecordsHandler) Dataset(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, prof, ok := h.profile(ctx, req)
	if !ok {
		return unauthorized(), nil
	}
	ds, err := prof.Records.Dataset(ctx)
	if err != nil {
		return errorResponse("load dataset", err), nil
	}
	return jsonResponse(http.StatusOK, ds), nil
}

func (h *RecordsHandler) ListPharmacies(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, prof, ok := h.profile(ctx, req)
	if !ok {
		return unauthorized(), nil
	}
	list, err := prof.Records.Pharmacies(ctx)
	if err != nil {
		return errorResponse("list pharmacies", err), nil
	}
	return jsonResponse(http.StatusOK, list), nil
}

func (h *RecordsHandler) AddPharmacy(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, prof, ok := h.profile(ctx, req)
	if !ok {
		return unauthorized(), nil
	}
	var p model.Pharmacy
	if err := json.Unmarshal([]byte(req.Body), &p); err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "Invalid request body"}, nil
	}
	created, err := prof.Records.AddPharmacy(ctx, p)
	if err != nil {
		return errorResponse("add pharmacy", err), nil
	}
	return jsonResponse(http.StatusCreated, created), nil
}

func (h *RecordsHandler) ListDoctors(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, prof, ok := h.profile(ctx, req)
	if !ok {
		return unauthorized(), nil
	}
	list, err := prof.Records.Doctors(ctx)
	if err != nil {
		return errorResponse("list doctors", err), nil
	}
	return jsonResponse(http.StatusOK, list), nil
}

func (h *RecordsHandler) AddDoctor(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx, prof, ok := h.profile(ctx, req)
	if !ok {
		return unauthorized(), nil
	}
	var d model.Doctor
	if err := json.Unmarshal([]byte(req.Body), &d); err != nil {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "Invalid request body"}, nil
	}
	created, err := prof.Records.AddDoctor(ctx, d)
	if err != nil {
		return errorResponse("add doctor", err), nil
	}
	return jsonResponse(http.StatusCreated, created), nil
}
