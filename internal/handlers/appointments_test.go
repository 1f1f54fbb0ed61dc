package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestAppointmentHandler() *AppointmentHandler {
	return NewAppointmentHandler(nil, nil, nil, 0, nil)
}

func TestCreatePublicAppointment_MissingOptionID_BadRequest(t *testing.T) {
	h := newTestAppointmentHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/public/appointments", bytes.NewBufferString(`{"customer":{"customer_type":"CASUAL","name":"Jamie"}}`))
	c.Request.Header.Set("Content-Type", "application/json")

	h.CreatePublicAppointment(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePublicAppointment_InvalidCustomerType_BadRequest(t *testing.T) {
	h := newTestAppointmentHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/public/appointments", bytes.NewBufferString(`{"option_id":"tok","customer":{"customer_type":"VIP"}}`))
	c.Request.Header.Set("Content-Type", "application/json")

	h.CreatePublicAppointment(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreatePublicAppointment_MalformedBirthDate_BadRequest(t *testing.T) {
	h := newTestAppointmentHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body := `{"option_id":"tok","customer":{"customer_type":"FREQUENT","name":"Jamie","phone":"+1555","birth_date":"not-a-date"}}`
	c.Request = httptest.NewRequest(http.MethodPost, "/public/appointments", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")

	h.CreatePublicAppointment(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterPayment_MissingPaidTotal_BadRequest(t *testing.T) {
	h := newTestAppointmentHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/appointments/abc/payment", bytes.NewBufferString(`{}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	h.RegisterPayment(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReschedule_MissingOptionToken_BadRequest(t *testing.T) {
	h := newTestAppointmentHandler()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/appointments/abc/reschedule", bytes.NewBufferString(`{}`))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = gin.Params{{Key: "id", Value: "abc"}}

	h.Reschedule(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
