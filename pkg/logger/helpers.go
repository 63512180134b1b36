package logger

// LogRequest logs the outcome of one dispatched HTTP request
func LogRequest(method, url string, statusCode int, durationMS float64) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": durationMS,
	}

	switch {
	case statusCode >= 200 && statusCode < 400:
		GetLogger().DebugWithFields("HTTP request completed", fields)
	case statusCode >= 400 && statusCode < 500:
		GetLogger().WarnWithFields("HTTP request client error", fields)
	default:
		GetLogger().ErrorWithFields("HTTP request server error", fields)
	}
}

// LogRateLimit logs a rate limit wait for a destination key
func LogRateLimit(destination string, delaySeconds float64) {
	GetLogger().InfoWithFields("rate limit wait", map[string]interface{}{
		"destination":   destination,
		"delay_seconds": delaySeconds,
	})
}

// LogProxyRotation logs a proxy health transition
func LogProxyRotation(address string, working bool) {
	fields := map[string]interface{}{
		"proxy":   address,
		"working": working,
	}
	if working {
		GetLogger().DebugWithFields("proxy healthy", fields)
	} else {
		GetLogger().WarnWithFields("proxy failed", fields)
	}
}
