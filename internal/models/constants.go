package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusMismatch  = "mismatch"
	StatusCancelled = "cancelled"
)

const (
	ChannelWeb   = "web"
	ChannelLine  = "line"
	ChannelMixed = "mixed"
)

const (
	// DateLayout формат даты во всех ключах и таблицах
	DateLayout = "2006-01-02"

	// ClockLayout формат времени начала слота
	ClockLayout = "15:04"

	// DefaultHoldTTLSeconds время жизни холда при первичном бронировании
	DefaultHoldTTLSeconds = 180

	// ReviewHoldTTLSeconds время жизни холда на экране проверки оплаты
	ReviewHoldTTLSeconds = 25

	// HoldRenewIntervalSeconds период продления холда активным клиентом
	HoldRenewIntervalSeconds = 10

	// HoldSkewMs допуск на рассинхронизацию часов при проверке истечения
	HoldSkewMs = 2000

	// WholeDayStart / WholeDayEnd кодируют закрытие на весь день
	WholeDayStart = "00:00"
	WholeDayEnd   = "23:59"

	// DefaultDepositPerHour базовый депозит за один час брони
	DefaultDepositPerHour = 100.0

	// DefaultMaxBookingHours потолок длительности одной брони
	DefaultMaxBookingHours = 4
)
