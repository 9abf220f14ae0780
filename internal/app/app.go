// Package app wires the configuration, platform and handlers, and routes API
// Gateway requests.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/aws/aws-lambda-go/events"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/jun/brickmap/internal/adapter/googledrive"
	"github.com/jun/brickmap/internal/adapter/memory"
	"github.com/jun/brickmap/internal/auth"
	"github.com/jun/brickmap/internal/config"
	"github.com/jun/brickmap/internal/crypto"
	"github.com/jun/brickmap/internal/handler"
	"github.com/jun/brickmap/internal/kvstore"
	"github.com/jun/brickmap/internal/secret"
)

const devJWTSecret = "default-dev-secret"

// App holds the dependencies for the Lambda function.
type App struct {
	cfg              config.Config
	authHandler      *handler.AuthHandler
	recordsHandler   *handler.RecordsHandler
	apiGatewaySecret string
}

// deps are the environment-specific pieces App is assembled from.
type deps struct {
	platform         auth.Platform
	newStore         auth.StoreFactory
	states           handler.StateVerifier
	jwtSecret        string
	apiGatewaySecret string
}

// NewApp initializes the application dependencies. DEV_MODE runs against the
// in-memory platform and stores; otherwise Google APIs, DynamoDB, KMS and SSM
// are used.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var (
		d   deps
		err error
	)
	if cfg.DevMode {
		d, err = devDeps(ctx, cfg)
	} else {
		d, err = awsDeps(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	return newApp(cfg, d), nil
}

func newApp(cfg config.Config, d deps) *App {
	provider := auth.NewProvider(d.platform, d.newStore, auth.Options{
		ClientID:    cfg.ClientID,
		Scope:       cfg.Scope,
		WaitTimeout: cfg.LibraryWaitTimeout,
	})
	profiles := handler.NewProfiles(provider, cfg.ResourceName)

	return &App{
		cfg:              cfg,
		authHandler:      handler.NewAuthHandler(profiles, d.states, d.jwtSecret, cfg.FrontendURL, cfg.DevMode),
		recordsHandler:   handler.NewRecordsHandler(profiles, d.jwtSecret),
		apiGatewaySecret: d.apiGatewaySecret,
	}
}

func devDeps(ctx context.Context, cfg config.Config) (deps, error) {
	log.Info().Msg("using in-memory platform and stores (DEV_MODE=true)")

	resolver := secret.NewEnvResolver()
	jwtSecret, err := resolver.GetSecret(ctx, cfg.JWTSecretParam)
	if err != nil {
		log.Warn().Err(err).Msg("JWT secret not set, using development default")
		jwtSecret = devJWTSecret
	}

	enc := crypto.NewMockEncryptor()
	// Stores outlive evicted profiles, like the DynamoDB table does.
	var (
		mu     sync.Mutex
		stores = make(map[string]kvstore.Store)
	)
	return deps{
		platform: memory.NewPlatform(),
		newStore: func(profileID string) kvstore.Store {
			mu.Lock()
			defer mu.Unlock()
			if s, ok := stores[profileID]; ok {
				return s
			}
			s := kvstore.NewSealed(kvstore.NewMemoryStore(), enc, kvstore.KeyAccessToken)
			stores[profileID] = s
			return s
		},
		jwtSecret: jwtSecret,
	}, nil
}

func awsDeps(ctx context.Context, cfg config.Config) (deps, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return deps{}, fmt.Errorf("unable to load SDK config: %w", err)
	}

	resolver := secret.NewCachedResolver(secret.NewSSMResolver(ssm.NewFromConfig(awsCfg)))

	jwtSecret, err := resolver.GetSecret(ctx, cfg.JWTSecretParam)
	if err != nil {
		return deps{}, fmt.Errorf("unable to resolve JWT secret: %w", err)
	}
	clientSecret, err := resolver.GetSecret(ctx, cfg.ClientSecretParam)
	if err != nil {
		log.Warn().Err(err).Msg("failed to resolve Google client secret")
	}
	apiGatewaySecret, err := resolver.GetSecret(ctx, cfg.APIGatewaySecretParam)
	if err != nil {
		log.Warn().Err(err).Msg("failed to resolve API Gateway secret")
	}

	var (
		consent auth.Consent
		issuer  auth.StateIssuer
		states  handler.StateVerifier
	)
	switch cfg.ConsentMode {
	case config.ConsentLoopback:
		consent = &auth.LoopbackConsent{Addr: cfg.LoopbackAddr, CallbackPath: "/oauth2callback"}
		issuer = auth.RandomStates{}
	default:
		jwtStates := auth.NewJWTStates(jwtSecret)
		consent = auth.RedirectConsent{}
		issuer = jwtStates
		states = jwtStates
	}

	platform := googledrive.NewPlatform(googledrive.PlatformConfig{
		ClientSecret: clientSecret,
		RedirectURL:  cfg.RedirectURL,
		Consent:      consent,
		States:       issuer,
	})

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	enc := crypto.NewKMSService(kms.NewFromConfig(awsCfg), cfg.KMSKeyID)

	log.Info().Str("consent", cfg.ConsentMode).Str("table", cfg.ProfilesTable).Msg("using Google platform")
	return deps{
		platform: platform,
		newStore: func(profileID string) kvstore.Store {
			return kvstore.NewSealed(kvstore.NewDynamoStore(dynamoClient, cfg.ProfilesTable, profileID), enc, kvstore.KeyAccessToken)
		},
		states:           states,
		jwtSecret:        jwtSecret,
		apiGatewaySecret: apiGatewaySecret,
	}, nil
}

func header(req events.APIGatewayProxyRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := req.Path
	method := req.HTTPMethod

	log.Debug().Str("method", method).Str("path", path).Msg("request")

	// CORS Preflight
	if method == http.MethodOptions {
		return app.corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	// Requests must come through CloudFront outside DEV_MODE.
	if !app.cfg.DevMode && header(req, "X-Origin-Verify") != app.apiGatewaySecret {
		log.Warn().Str("path", path).Msg("missing or invalid X-Origin-Verify header")
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusForbidden,
			Body:       "Forbidden: Access denied",
		}, nil
	}

	path = strings.TrimPrefix(path, "/api")

	switch {
	case path == "/auth/signin" && method == http.MethodPost:
		return app.corsResponse(must(app.authHandler.SignIn(ctx, req))), nil
	case path == "/auth/callback" && method == http.MethodGet:
		return app.corsResponse(must(app.authHandler.Callback(ctx, req))), nil
	case path == "/auth/signout" && method == http.MethodPost:
		return app.corsResponse(must(app.authHandler.SignOut(ctx, req))), nil
	case path == "/auth/status" && method == http.MethodGet:
		return app.corsResponse(must(app.authHandler.Status(ctx, req))), nil

	case path == "/resource" && method == http.MethodGet:
		return app.corsResponse(must(app.recordsHandler.Resource(ctx, req))), nil
	case path == "/resource/reset" && method == http.MethodPost:
		return app.corsResponse(must(app.recordsHandler.ResetResource(ctx, req))), nil

	case path == "/records" && method == http.MethodGet:
		return app.corsResponse(must(app.recordsHandler.Dataset(ctx, req))), nil
	case path == "/records/pharmacies" && method == http.MethodGet:
		return app.corsResponse(must(app.recordsHandler.ListPharmacies(ctx, req))), nil
	case path == "/records/pharmacies" && method == http.MethodPost:
		return app.corsResponse(must(app.recordsHandler.AddPharmacy(ctx, req))), nil
	case path == "/records/doctors" && method == http.MethodGet:
		return app.corsResponse(must(app.recordsHandler.ListDoctors(ctx, req))), nil
	case path == "/records/doctors" && method == http.MethodPost:
		return app.corsResponse(must(app.recordsHandler.AddDoctor(ctx, req))), nil
	}

	return app.corsResponse(events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}), nil
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.cfg.FrontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	return resp
}

// must unwraps a handler response, replacing an error with a 500.
func must(resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		log.Error().Err(err).Msg("handler error")
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
