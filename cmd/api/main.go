package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rahulm/bank-lending/pkg/cache"
	"github.com/rahulm/bank-lending/pkg/config"
	"github.com/rahulm/bank-lending/pkg/ledger"
	"github.com/rahulm/bank-lending/pkg/models"
	"github.com/rahulm/bank-lending/pkg/store"
)

// Server holds the ledger instance.
type Server struct {
	ledger  *ledger.Ledger
	storage store.Storage
	log     *logrus.Logger
}

func NewServer(s store.Storage, c cache.Cache, log *logrus.Logger) *Server {
	return &Server{
		ledger:  ledger.NewLedger(s, c, log),
		storage: s,
		log:     log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusForError maps the ledger error taxonomy onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, ledger.ErrLoanNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrBelowMinimumInstallment),
		errors.Is(err, ledger.ErrFinalPaymentMismatch),
		errors.Is(err, ledger.ErrOverpaymentRejected):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID      int64           `json:"customer_id"`
		LoanAmount      decimal.Decimal `json:"loan_amount"`
		LoanPeriodYears int             `json:"loan_period_years"`
		InterestRate    decimal.Decimal `json:"interest_rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	loan, err := s.ledger.Originate(req.CustomerID, req.LoanAmount, req.LoanPeriodYears, req.InterestRate)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			s.log.Errorf("failed to create loan: %v", err)
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"loan_id":      loan.ID,
		"customer_id":  loan.CustomerID,
		"total_amount": loan.TotalAmount,
		"monthly_emi":  loan.MonthlyEMI,
		"message":      "Loan created successfully!",
	})
}

func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(mux.Vars(r)["loan_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid loan ID")
		return
	}

	var req struct {
		Amount      decimal.Decimal    `json:"amount"`
		PaymentType models.PaymentType `json:"payment_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	payment, closed, err := s.ledger.ApplyPayment(loanID, req.Amount, req.PaymentType)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			s.log.Errorf("failed to record payment for loan %d: %v", loanID, err)
		}
		writeError(w, status, err.Error())
		return
	}

	message := "Payment recorded successfully!"
	if closed {
		message = "Payment recorded successfully! Loan is now CLOSED."
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payment_id":        payment.ID,
		"loan_id":           payment.LoanID,
		"remaining_balance": payment.RemainingBalance,
		"emis_left":         payment.EMIsLeft,
		"message":           message,
	})
}

func (s *Server) loanLedgerHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := strconv.ParseInt(mux.Vars(r)["loan_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid loan ID")
		return
	}

	statement, err := s.ledger.Statement(loanID)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			s.log.Errorf("failed to build statement for loan %d: %v", loanID, err)
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statement)
}

func (s *Server) overviewHandler(w http.ResponseWriter, r *http.Request) {
	customerID, err := strconv.ParseInt(mux.Vars(r)["customer_id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "valid customer_id is required")
		return
	}

	overview, err := s.ledger.Overview(customerID)
	if err != nil {
		status := statusForError(err)
		if status == http.StatusInternalServerError {
			s.log.Errorf("failed to build overview for customer %d: %v", customerID, err)
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	customers, err := s.ledger.Customers()
	if err != nil {
		s.log.Errorf("failed to list customers: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusRecorder captures the response code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush passes through so streaming handlers still work behind the
// access-log middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// loggingMiddleware tags each request with a correlation ID and emits one
// structured access-log line per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.log.WithFields(logrus.Fields{
			"request_id":  requestID,
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("request handled")
	})
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/health", s.healthHandler).Methods("GET")
	router.HandleFunc("/api/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/api/loans/{loan_id}/payment", s.recordPaymentHandler).Methods("POST")
	router.HandleFunc("/api/loans/{loan_id}/ledger", s.loanLedgerHandler).Methods("GET")
	router.HandleFunc("/api/customers", s.listCustomersHandler).Methods("GET")
	router.HandleFunc("/api/customers/{customer_id}/overview", s.overviewHandler).Methods("GET")
	return router
}

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logLevel, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Initialize storage
	sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		logger.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	// Projection cache: Redis when configured, in-process otherwise
	var projCache cache.Cache
	if cfg.RedisAddr != "" {
		projCache = cache.NewRedisCache(cfg.RedisAddr)
		logger.Infof("Using Redis overview cache at %s", cfg.RedisAddr)
	} else {
		projCache = cache.NewMemoryCache()
	}

	server := NewServer(sqliteStore, projCache, logger)

	addr := fmt.Sprintf(":%s", cfg.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logger.Fatalf("Server failed: %v", err)
	case <-quit:
		logger.Info("Shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Errorf("Error during server shutdown: %v", err)
	}
	logger.Info("Server exited")
}
