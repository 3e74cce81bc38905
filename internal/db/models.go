package db

import "github.com/sokoniapp/sokoni/internal/models"

type Store = models.Store
type Product = models.Product
type PaymentLink = models.PaymentLink
type PaymentMethod = models.PaymentMethod
type Order = models.Order
type OrderStatus = models.OrderStatus

const (
	StatusPending             = models.StatusPending
	StatusUnderReview         = models.StatusUnderReview
	StatusPendingVerification = models.StatusPendingVerification
	StatusCompleted           = models.StatusCompleted
	StatusRejected            = models.StatusRejected
	StatusFailed              = models.StatusFailed
	StatusShipped             = models.StatusShipped
	StatusDelivered           = models.StatusDelivered
)
