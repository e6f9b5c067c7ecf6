package handler

const (
	errInternalServer = "Internal server error"

	errJobNotFound       = "Job not found"
	errJobNotCancellable = "Job cannot be cancelled in its current state"
	errJobNotRetryable   = "Job cannot be retried in its current state"

	errInvalidCredentials = "Invalid username or password"
	errUserDisabled       = "User account is disabled"
	errUsernameTaken      = "Username is already taken"
	errEmailTaken         = "Email is already registered"

	errScheduleNotFound      = "Schedule not found"
	errInvalidCronExpr       = "Invalid cron expression"
	errScheduleNameConflict  = "Schedule with this name already exists"
	errScheduleAlreadyPaused = "Schedule is already paused"
	errScheduleNotPaused     = "Schedule is not paused"
)
