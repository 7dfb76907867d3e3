package main

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"mentorhub/src/db"
	"mentorhub/src/lib"
	"mentorhub/src/middlewares"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type TestSuite struct {
	suite.Suite
	DB   *gorm.DB
	Mock *sqlmock.Sqlmock
}

func NewMockDB() (*gorm.DB, sqlmock.Sqlmock) {
	mockdb, mock, err := sqlmock.New()
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: mockdb,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening gorm database", err)
	}

	return gormDB, mock
}

func (s *TestSuite) SetupSuite() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("rangedate", rangeDateValidatorFunc)
	}

	d, mock := NewMockDB()
	db.NewDB(d)
	s.DB = d
	s.Mock = &mock

	os.Setenv("VNPAY_HASH_SECRET", "testsecret")
}

func (s *TestSuite) TearDownSuite() {
	os.Unsetenv("VNPAY_HASH_SECRET")
	inner, err := s.DB.DB()
	if err != nil {
		log.Printf("Error accessing inner db instance: %s\n", err.Error())
		return
	}
	inner.Close()
}

func (s *TestSuite) TestPingRoute() {
	router := setupRouter()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 200, w.Code)
}

func (s *TestSuite) TestMaintenanceMode() {
	os.Setenv("MAINTENANCE_MODE", "true")
	defer os.Unsetenv("MAINTENANCE_MODE")

	router := setupRouter()
	router = maintenanceModeMiddleware(router)
	apiv1Group(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 503, w.Code)
}

func (s *TestSuite) TestBookingsRequireAuth() {
	router := setupRouter()
	authorized := apiv1Group(router)
	authorized.Use(middlewares.AuthMiddleware)
	bookingHandlers(authorized)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/bookings", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 401, w.Code)

	// a scheme with no token must be rejected the same way
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/api/v1/bookings", nil)
	req.Header.Set("Authorization", "Bearer")
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 401, w.Code)
}

func (s *TestSuite) TestPaymentCallbackRejectsBadSignature() {
	router := setupRouter()
	paymentCallbackRoute(router)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/payment/vnpay/callback?vnp_TxnRef=42&vnp_ResponseCode=00&vnp_SecureHash=deadbeef", nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 400, w.Code)
	rbytes, err := io.ReadAll(w.Body)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), "97", gjson.Get(string(rbytes), "RspCode").String())
}

func (s *TestSuite) TestPaymentCallbackUnknownOrder() {
	router := setupRouter()
	paymentCallbackRoute(router)

	query := lib.VNPaySignedQuery(map[string]string{
		lib.VNPayParamTxnRef:       "not-a-number",
		lib.VNPayParamResponseCode: lib.VNPayResponseSuccess,
	}, "testsecret")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/payment/vnpay/callback?"+query, nil)
	router.ServeHTTP(w, req)

	assert.Equal(s.T(), 404, w.Code)
	rbytes, err := io.ReadAll(w.Body)
	assert.Nil(s.T(), err)
	assert.Equal(s.T(), "01", gjson.Get(string(rbytes), "RspCode").String())
}

func TestRunner(t *testing.T) {
	suite.Run(t, new(TestSuite))
}
