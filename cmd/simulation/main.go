package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/orrange/orrange-api/internal/auth"
	"github.com/orrange/orrange-api/internal/custody"
	"github.com/orrange/orrange-api/internal/database"
	"github.com/orrange/orrange-api/internal/orders"
	"github.com/orrange/orrange-api/internal/transfer"
	"github.com/orrange/orrange-api/internal/types"
	"github.com/orrange/orrange-api/internal/users"
	"github.com/orrange/orrange-api/pkg/apperrors"
	"github.com/orrange/orrange-api/pkg/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	serverAddress = "http://localhost:8080"
	jwtSecret     = "orrange-simulation-secret"
	apiSecret     = "sim-api-secret"

	userKey      = "sim-user"
	merchantAKey = "sim-merchant-a"
	merchantBKey = "sim-merchant-b"
	adminKey     = "sim-admin"

	merchantAWalletID = "WAL_merchant_a"
	merchantBWalletID = "WAL_merchant_b"
	merchantAAddress  = "0x00000000000000000000000000000000000000aa"
	merchantBAddress  = "0x00000000000000000000000000000000000000bb"
	userAddress       = "0x0000000000000000000000000000000000000011"

	minOrders = 10
	maxOrders = 40
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// apiError carries the coded error returned by a failed call so scenarios can
// assert on the code, not just on failure.
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// simulationClient handles HTTP communication with the exchange API. It holds
// one JWT per simulated identity so the same client can play user, merchants
// and admin.
type simulationClient struct {
	baseURL string
	client  *http.Client
	tokens  map[string]string

	mu    sync.Mutex
	stats map[string]*routeStats
}

// newSimulationClient creates a client and authenticates every simulated
// identity up front.
func newSimulationClient(identities []string) (*simulationClient, error) {
	sc := &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		tokens:  make(map[string]string),
		stats: map[string]*routeStats{
			"auth":    {name: "Authentication"},
			"sync":    {name: "User Sync"},
			"create":  {name: "Create Order"},
			"queue":   {name: "Merchant Queue"},
			"accept":  {name: "Accept Order"},
			"submit":  {name: "Submit Payment"},
			"confirm": {name: "Confirm Payment"},
			"retry":   {name: "Retry Transfer"},
			"cancel":  {name: "Cancel Order"},
			"get":     {name: "Get Order"},
		},
	}

	for _, identity := range identities {
		token, err := sc.authenticate(identity)
		if err != nil {
			return nil, fmt.Errorf("failed to authenticate %s: %w", identity, err)
		}
		sc.tokens[identity] = token
	}

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate(apiKey string) (string, error) {
	start := time.Now()
	defer func() {
		sc.record("auth", time.Since(start), nil)
	}()

	credentials := map[string]string{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
		Data    struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

func (sc *simulationClient) record(route string, d time.Duration, err error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	rs := sc.stats[route]
	rs.addDuration(d)
	if err != nil {
		rs.failures++
	}
}

// call issues an authenticated request as the given identity and decodes the
// response envelope into out. Coded API errors come back as *apiError.
func (sc *simulationClient) call(identity, route, method, path string, payload, out interface{}) error {
	start := time.Now()
	var callErr error
	defer func() {
		sc.record(route, time.Since(start), callErr)
	}()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			callErr = err
			return err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		callErr = err
		return err
	}
	req.Header.Set("Authorization", "Bearer "+sc.tokens[identity])
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		callErr = err
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		callErr = err
		return err
	}
	log.Debug().Str("route", route).Str("response", string(respBody)).Msg("API response")

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		callErr = fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
		return callErr
	}

	if !envelope.Success {
		apiErr := &apiError{Status: resp.StatusCode}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		callErr = apiErr
		return apiErr
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			callErr = fmt.Errorf("failed to decode data: %w, body: %s", err, string(respBody))
			return callErr
		}
	}
	return nil
}

func (sc *simulationClient) syncUser(identity string, input users.SyncInput) (*types.User, error) {
	var user types.User
	err := sc.call(identity, "sync", "POST", "/api/v1/users/sync", input, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (sc *simulationClient) promote(adminIdentity, userID, upiID string) (*types.Merchant, error) {
	var merchant types.Merchant
	payload := map[string]string{"upi_id": upiID}
	path := fmt.Sprintf("/api/v1/admin/users/%s/promote", userID)
	if err := sc.call(adminIdentity, "sync", "POST", path, payload, &merchant); err != nil {
		return nil, err
	}
	return &merchant, nil
}

func (sc *simulationClient) createOrder(identity string, input orders.CreateInput) (*types.Order, error) {
	var order types.Order
	if err := sc.call(identity, "create", "POST", "/api/v1/orders", input, &order); err != nil {
		return nil, err
	}
	if order.OrderID == "" {
		return nil, fmt.Errorf("no order ID in response")
	}
	return &order, nil
}

func (sc *simulationClient) merchantQueue(identity string) (*orders.MerchantQueue, error) {
	var queue orders.MerchantQueue
	if err := sc.call(identity, "queue", "GET", "/api/v1/orders/queue", nil, &queue); err != nil {
		return nil, err
	}
	return &queue, nil
}

func (sc *simulationClient) acceptOrder(identity, orderID string) (*types.Order, error) {
	var order types.Order
	path := fmt.Sprintf("/api/v1/orders/%s/accept", orderID)
	if err := sc.call(identity, "accept", "POST", path, map[string]string{}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (sc *simulationClient) submitPayment(identity, orderID, reference string) (*types.Order, error) {
	var order types.Order
	path := fmt.Sprintf("/api/v1/orders/%s/submit-payment", orderID)
	payload := map[string]string{"payment_reference": reference}
	if err := sc.call(identity, "submit", "POST", path, payload, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (sc *simulationClient) confirmPayment(identity, orderID string) (*types.TransferResult, error) {
	var result types.TransferResult
	path := fmt.Sprintf("/api/v1/orders/%s/confirm-payment", orderID)
	if err := sc.call(identity, "confirm", "POST", path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (sc *simulationClient) retryTransfer(identity, orderID string) (*types.TransferResult, error) {
	var result types.TransferResult
	path := fmt.Sprintf("/api/v1/orders/%s/retry-transfer", orderID)
	if err := sc.call(identity, "retry", "POST", path, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (sc *simulationClient) cancelOrder(identity, orderID string) (*types.Order, error) {
	var order types.Order
	path := fmt.Sprintf("/api/v1/orders/%s/cancel", orderID)
	if err := sc.call(identity, "cancel", "POST", path, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (sc *simulationClient) getOrder(identity, orderID string) (*types.Order, error) {
	var order types.Order
	path := fmt.Sprintf("/api/v1/orders/%s", orderID)
	if err := sc.call(identity, "get", "GET", path, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\n📊 API Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the exchange simulation. It starts a local API server backed by
// the simulated custody gateway, provisions a user, two merchants and an
// admin, then drives order lifecycles including merchant contention, an
// insufficient-balance transfer with retry, and cancellations.
func main() {
	db, gateway, err := startServer()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient, err := newSimulationClient([]string{userKey, merchantAKey, merchantBKey, adminKey})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	if err := provisionIdentities(simClient, db, gateway); err != nil {
		log.Fatal().Err(err).Msg("Failed to provision identities")
	}

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	stats := struct {
		TotalOrders      int
		Completed        int
		Cancelled        int
		ContentionLosses int
		TransferRetries  int
		Failed           int
		TotalFiatValue   decimal.Decimal
		TotalUSDCValue   decimal.Decimal
		StartTime        time.Time
	}{
		StartTime:      time.Now(),
		TotalFiatValue: decimal.Zero,
		TotalUSDCValue: decimal.Zero,
	}

	for i := 0; i < targetOrders; i++ {
		usdc := decimal.NewFromInt(int64(rand.Intn(50) + 1))
		fiat := usdc.Mul(decimal.NewFromInt(90))

		order, err := simClient.createOrder(userKey, orders.CreateInput{
			Kind:          string(types.OrderKindOnramp),
			FiatAmount:    fiat,
			USDCAmount:    usdc,
			WalletAddress: userAddress,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to create order")
			stats.Failed++
			continue
		}
		stats.TotalOrders++

		// Every fifth order is abandoned by the user before any merchant
		// claims it.
		if i%5 == 4 {
			if _, err := simClient.cancelOrder(userKey, order.OrderID); err != nil {
				log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to cancel order")
				stats.Failed++
				continue
			}
			stats.Cancelled++
			log.Info().Str("order_id", order.OrderID).Msg("Order cancelled")
			continue
		}

		// Merchants poll their queue between claims, like the UI does.
		if i%4 == 0 {
			if queue, qerr := simClient.merchantQueue(merchantAKey); qerr == nil {
				log.Debug().
					Int("available", len(queue.Available)).
					Int("assigned", len(queue.Assigned)).
					Msg("merchant queue")
			}
		}

		winner, losses, err := raceAccept(simClient, order.OrderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", order.OrderID).Msg("No merchant could accept order")
			stats.Failed++
			continue
		}
		stats.ContentionLosses += losses

		if _, err := simClient.submitPayment(userKey, order.OrderID, fmt.Sprintf("UPI-%d-%d", time.Now().UnixNano(), i)); err != nil {
			log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to submit payment")
			stats.Failed++
			continue
		}

		result, err := simClient.confirmPayment(winner, order.OrderID)
		if err != nil {
			log.Error().Err(err).Str("order_id", order.OrderID).Msg("Failed to confirm payment")
			stats.Failed++
			continue
		}

		stats.Completed++
		stats.TotalFiatValue = stats.TotalFiatValue.Add(fiat)
		stats.TotalUSDCValue = stats.TotalUSDCValue.Add(usdc)
		log.Info().
			Str("order_id", order.OrderID).
			Str("merchant", winner).
			Str("tx_hash", result.TxHash).
			Str("usdc", usdc.String()).
			Msg("Order completed")
	}

	// Drain a merchant's balance and verify the insufficient-balance path
	// recovers through retry-transfer after a top-up.
	retried, err := runInsufficientBalanceScenario(simClient, gateway)
	if err != nil {
		log.Error().Err(err).Msg("Insufficient-balance scenario failed")
		stats.Failed++
	} else if retried {
		stats.Completed++
		stats.TransferRetries++
		stats.TotalOrders++
	}

	duration := time.Since(stats.StartTime)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("🚀 EXCHANGE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
📊 Order Statistics
------------------
Total Orders:       %d
Completed:          %d
Cancelled:          %d
Contention Losses:  %d
Transfer Retries:   %d
Failed:             %d
Total Fiat (INR):   %s
Total USDC:         %s
Duration:           %v
`, stats.TotalOrders, stats.Completed, stats.Cancelled, stats.ContentionLosses,
		stats.TransferRetries, stats.Failed,
		stats.TotalFiatValue.StringFixed(2), stats.TotalUSDCValue.StringFixed(2),
		duration.Round(time.Millisecond))

	fmt.Println("\n" + strings.Repeat("=", 80))

	successRate := 0.0
	if stats.TotalOrders > 0 {
		successRate = float64(stats.Completed+stats.Cancelled) / float64(stats.TotalOrders) * 100
	}
	log.Info().
		Float64("success_rate", successRate).
		Int("total_orders", stats.TotalOrders).
		Int("completed", stats.Completed).
		Dur("duration", duration).
		Msg("Simulation completed")

	simClient.printPerformanceStats()
}

// provisionIdentities syncs all simulated identities, seeds the admin role
// directly in the database (it is never client-assignable), promotes the
// second merchant through the admin API, and binds the merchant wallets on
// the simulated gateway.
func provisionIdentities(sc *simulationClient, db *gorm.DB, gateway *custody.SimulatedGateway) error {
	if _, err := sc.syncUser(userKey, users.SyncInput{
		Email:         "user@example.com",
		WalletAddress: userAddress,
	}); err != nil {
		return fmt.Errorf("user sync: %w", err)
	}

	if _, err := sc.syncUser(merchantAKey, users.SyncInput{
		Email:         "merchant-a@example.com",
		Role:          string(types.RoleMerchant),
		WalletAddress: merchantAAddress,
		WalletID:      merchantAWalletID,
	}); err != nil {
		return fmt.Errorf("merchant A sync: %w", err)
	}

	merchantB, err := sc.syncUser(merchantBKey, users.SyncInput{
		Email:         "merchant-b@example.com",
		WalletAddress: merchantBAddress,
		WalletID:      merchantBWalletID,
	})
	if err != nil {
		return fmt.Errorf("merchant B sync: %w", err)
	}

	if _, err := sc.syncUser(adminKey, users.SyncInput{Email: "admin@example.com"}); err != nil {
		return fmt.Errorf("admin sync: %w", err)
	}
	if err := db.Model(&types.User{}).
		Where("identity_id = ?", adminKey).
		Update("role", types.RoleAdmin).Error; err != nil {
		return fmt.Errorf("seeding admin role: %w", err)
	}

	// Merchant B starts as a plain user and goes through the admin promotion
	// path; merchant A signed up as a merchant directly.
	if _, err := sc.promote(adminKey, merchantB.UserID, "merchant-b@upi"); err != nil {
		return fmt.Errorf("merchant B promotion: %w", err)
	}

	gateway.BindWallet(merchantAWalletID, merchantAAddress)
	gateway.BindWallet(merchantBWalletID, merchantBAddress)
	gateway.SetBalance(merchantAAddress, decimal.NewFromInt(5000))
	gateway.SetBalance(merchantBAddress, decimal.NewFromInt(5000))

	log.Info().Msg("Identities provisioned")
	return nil
}

// raceAccept has both merchants try to claim the order concurrently. Exactly
// one wins; the loser's rejection is counted, any other failure is returned.
func raceAccept(sc *simulationClient, orderID string) (winner string, losses int, err error) {
	type outcome struct {
		identity string
		err      error
	}

	results := make(chan outcome, 2)
	for _, identity := range []string{merchantAKey, merchantBKey} {
		go func(identity string) {
			_, acceptErr := sc.acceptOrder(identity, orderID)
			results <- outcome{identity: identity, err: acceptErr}
		}(identity)
	}

	var firstErr error
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err == nil {
			winner = res.identity
			continue
		}
		var ae *apiError
		if isAPIError(res.err, &ae) &&
			(ae.Code == string(apperrors.CodeConflict) || ae.Code == string(apperrors.CodeInvalidState)) {
			losses++
			continue
		}
		firstErr = res.err
	}

	if winner == "" {
		if firstErr != nil {
			return "", losses, firstErr
		}
		return "", losses, fmt.Errorf("no merchant won the race for order %s", orderID)
	}
	return winner, losses, nil
}

func isAPIError(err error, target **apiError) bool {
	ae, ok := err.(*apiError)
	if ok {
		*target = ae
	}
	return ok
}

// runInsufficientBalanceScenario drives one order into payment_confirmed with
// the winning merchant's balance too low for the transfer, then tops the
// balance up and completes it through retry-transfer.
func runInsufficientBalanceScenario(sc *simulationClient, gateway *custody.SimulatedGateway) (bool, error) {
	usdc := decimal.NewFromInt(100)
	order, err := sc.createOrder(userKey, orders.CreateInput{
		Kind:          string(types.OrderKindOnramp),
		FiatAmount:    usdc.Mul(decimal.NewFromInt(90)),
		USDCAmount:    usdc,
		WalletAddress: userAddress,
	})
	if err != nil {
		return false, fmt.Errorf("create: %w", err)
	}

	if _, err := sc.acceptOrder(merchantAKey, order.OrderID); err != nil {
		return false, fmt.Errorf("accept: %w", err)
	}
	if _, err := sc.submitPayment(userKey, order.OrderID, fmt.Sprintf("UPI-RETRY-%d", time.Now().UnixNano())); err != nil {
		return false, fmt.Errorf("submit: %w", err)
	}

	// Not enough for a 100 USDC transfer.
	gateway.SetBalance(merchantAAddress, decimal.NewFromInt(5))

	_, err = sc.confirmPayment(merchantAKey, order.OrderID)
	var ae *apiError
	if err == nil {
		return false, fmt.Errorf("expected insufficient balance, transfer succeeded")
	}
	if !isAPIError(err, &ae) || ae.Code != string(apperrors.CodeInsufficientBalance) {
		return false, fmt.Errorf("confirm: %w", err)
	}

	current, err := sc.getOrder(userKey, order.OrderID)
	if err != nil {
		return false, fmt.Errorf("get after failed transfer: %w", err)
	}
	if current.Status != types.OrderStatusPaymentConfirmed {
		return false, fmt.Errorf("order left in %s, want %s", current.Status, types.OrderStatusPaymentConfirmed)
	}
	log.Info().Str("order_id", order.OrderID).Msg("Transfer held on insufficient balance")

	gateway.SetBalance(merchantAAddress, decimal.NewFromInt(5000))

	result, err := sc.retryTransfer(merchantAKey, order.OrderID)
	if err != nil {
		return false, fmt.Errorf("retry: %w", err)
	}
	log.Info().
		Str("order_id", order.OrderID).
		Str("tx_hash", result.TxHash).
		Msg("Order completed after retry")
	return true, nil
}

// startServer initializes and starts the exchange API server with the
// simulated custody gateway. It returns the database and gateway handles so
// scenarios can seed roles and balances.
func startServer() (*gorm.DB, *custody.SimulatedGateway, error) {
	db, err := database.NewDatabase("file::memory:?cache=shared")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gateway := custody.NewSimulatedGateway()

	authService := auth.NewService(jwtSecret)
	for _, key := range []string{userKey, merchantAKey, merchantBKey, adminKey} {
		authService.RegisterAPICredentials(key, apiSecret)
	}

	userService := users.NewService(db)
	orchestrator := transfer.NewOrchestrator(db, gateway)
	bootstrap := transfer.NewBootstrap(db, gateway)
	orderService := orders.NewService(db, userService, orchestrator, bootstrap)

	router := gin.Default()
	authHandlers := auth.NewGinHandlers(authService)
	userHandlers := users.NewGinHandlers(userService)
	orderHandlers := orders.NewGinHandlers(orderService)

	setupRoutes(router, authHandlers, userHandlers, orderHandlers)

	go func() {
		if err := router.Run(":8080"); err != nil {
			log.Fatal().Err(err).Msg("Server stopped")
		}
	}()

	return db, gateway, nil
}

// setupRoutes configures all API endpoints and their handlers
// Groups routes by functionality and applies appropriate middleware
func setupRoutes(
	router *gin.Engine,
	authHandlers *auth.GinHandlers,
	userHandlers *users.GinHandlers,
	orderHandlers *orders.GinHandlers,
) {
	secret := []byte(jwtSecret)

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		userGroup := v1.Group("/users")
		userGroup.Use(middleware.JWTAuth(secret))
		{
			userGroup.POST("/sync", userHandlers.SyncHandler())
			userGroup.GET("/me", userHandlers.MeHandler())
		}

		adminGroup := v1.Group("/admin")
		adminGroup.Use(middleware.JWTAuth(secret))
		{
			adminGroup.POST("/users/:user_id/promote", userHandlers.PromoteHandler())
		}

		orderGroup := v1.Group("/orders")
		orderGroup.Use(middleware.JWTAuth(secret))
		{
			orderGroup.POST("", orderHandlers.CreateOrderHandler())
			orderGroup.GET("", orderHandlers.ListOrdersHandler())
			orderGroup.GET("/queue", orderHandlers.MerchantQueueHandler())
			orderGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
			orderGroup.POST("/:order_id/accept", orderHandlers.AcceptOrderHandler())
			orderGroup.POST("/:order_id/submit-payment", orderHandlers.SubmitPaymentHandler())
			orderGroup.POST("/:order_id/confirm-payment", orderHandlers.ConfirmPaymentHandler())
			orderGroup.POST("/:order_id/retry-transfer", orderHandlers.RetryTransferHandler())
			orderGroup.POST("/:order_id/cancel", orderHandlers.CancelOrderHandler())
		}
	}
}
