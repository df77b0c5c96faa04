package integrations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"
	graphScope          = "https://graph.microsoft.com/.default"
)

// GraphConfig configures the Microsoft Graph directory client.
type GraphConfig struct {
	TenantID     string
	ClientID     string
	ClientSecret string

	// BaseURL and TokenURL default to the public Graph and Entra ID endpoints.
	BaseURL  string
	TokenURL string

	// HTTPClient is the transport used below the OAuth2 layer; typically a caching client.
	HTTPClient *http.Client
	Retry      RetryConfig
}

// Configured returns true when client credentials are present.
func (c GraphConfig) Configured() bool {
	return c.TenantID != "" && c.ClientID != "" && c.ClientSecret != ""
}

// Graph is a Directory backed by the Microsoft Graph REST API.
type Graph struct {
	baseURL string
	caller  *jsonCaller

	// skuIDs maps upper-cased skuPartNumber to the tenant's skuId GUID.
	skuMu  sync.Mutex
	skuIDs map[string]string
}

var _ Directory = (*Graph)(nil)

// NewGraph creates a Graph client authenticating with the client credentials flow.
// The context is used for token refreshes and should live as long as the client.
func NewGraph(ctx context.Context, cfg GraphConfig) *Graph {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGraphBaseURL
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", url.PathEscape(cfg.TenantID))
	}

	base := cfg.HTTPClient
	if base == nil {
		base = http.DefaultClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{graphScope},
	}

	return &Graph{
		baseURL: baseURL,
		caller: &jsonCaller{
			service: "graph",
			client:  oauth2.NewClient(ctx, cc.TokenSource(ctx)),
			retry:   cfg.Retry.withDefaults(),
		},
	}
}

func (g *Graph) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	endpoint := fmt.Sprintf("%s/users/%s?$select=id,displayName,mail,jobTitle,department", g.baseURL, url.PathEscape(email))

	var user User
	status, err := g.caller.call(ctx, http.MethodGet, endpoint, nil, &user)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %s: %w", email, err)
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return &user, nil
}

type graphAddLicense struct {
	DisabledPlans []string `json:"disabledPlans"`
	SkuID         string   `json:"skuId"`
}

type graphAssignLicense struct {
	AddLicenses    []graphAddLicense `json:"addLicenses"`
	RemoveLicenses []string          `json:"removeLicenses"`
}

type graphSubscribedSkus struct {
	Value []struct {
		SkuID         string `json:"skuId"`
		SkuPartNumber string `json:"skuPartNumber"`
	} `json:"value"`
}

// resolveSKU turns a catalog SKU into the skuId GUID Graph expects. GUIDs pass
// through; part numbers such as "ENTERPRISEPACK" are looked up in the tenant's
// subscribed SKUs, refreshing the cached table once on a miss.
func (g *Graph) resolveSKU(ctx context.Context, sku string) (string, error) {
	if _, err := uuid.Parse(sku); err == nil {
		return sku, nil
	}
	key := strings.ToUpper(strings.TrimSpace(sku))

	g.skuMu.Lock()
	defer g.skuMu.Unlock()

	if id, ok := g.skuIDs[key]; ok {
		return id, nil
	}

	var skus graphSubscribedSkus
	status, err := g.caller.call(ctx, http.MethodGet, g.baseURL+"/subscribedSkus?$select=skuId,skuPartNumber", nil, &skus)
	if err != nil {
		return "", fmt.Errorf("failed to list subscribed SKUs: %w", err)
	}
	if status == http.StatusNotFound {
		return "", fmt.Errorf("%w: subscribed SKUs", ErrNotFound)
	}

	g.skuIDs = make(map[string]string, len(skus.Value))
	for _, s := range skus.Value {
		g.skuIDs[strings.ToUpper(s.SkuPartNumber)] = s.SkuID
	}
	if id, ok := g.skuIDs[key]; ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: SKU %s is not subscribed in the tenant", ErrNotFound, sku)
}

func (g *Graph) AssignLicense(ctx context.Context, userID, sku string) error {
	skuID, err := g.resolveSKU(ctx, sku)
	if err != nil {
		return err
	}
	body := graphAssignLicense{
		AddLicenses:    []graphAddLicense{{DisabledPlans: []string{}, SkuID: skuID}},
		RemoveLicenses: []string{},
	}
	return g.assignLicense(ctx, userID, body)
}

func (g *Graph) RevokeLicense(ctx context.Context, userID, sku string) error {
	skuID, err := g.resolveSKU(ctx, sku)
	if err != nil {
		return err
	}
	body := graphAssignLicense{
		AddLicenses:    []graphAddLicense{},
		RemoveLicenses: []string{skuID},
	}
	return g.assignLicense(ctx, userID, body)
}

func (g *Graph) assignLicense(ctx context.Context, userID string, body graphAssignLicense) error {
	endpoint := fmt.Sprintf("%s/users/%s/assignLicense", g.baseURL, url.PathEscape(userID))

	status, err := g.caller.call(ctx, http.MethodPost, endpoint, body, nil)
	if err != nil {
		return fmt.Errorf("failed to update licenses for user %s: %w", userID, err)
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: user %s", ErrNotFound, userID)
	}
	return nil
}

func (g *Graph) AddUserToGroup(ctx context.Context, groupID, userID string) error {
	endpoint := fmt.Sprintf("%s/groups/%s/members/$ref", g.baseURL, url.PathEscape(groupID))
	body := map[string]string{
		"@odata.id": fmt.Sprintf("%s/directoryObjects/%s", g.baseURL, url.PathEscape(userID)),
	}

	status, err := g.caller.call(ctx, http.MethodPost, endpoint, body, nil)
	if err != nil {
		return fmt.Errorf("failed to add user %s to group %s: %w", userID, groupID, err)
	}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	return nil
}
