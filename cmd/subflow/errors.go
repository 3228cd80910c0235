package main

import "subflow/internal/services"

// exitCode maps a command error to a process status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	switch services.KindOf(err) {
	case services.KindCancelled:
		return 130
	case services.KindInputNotFound, services.KindValidation:
		return 2
	case services.KindBusy:
		return 3
	default:
		return 1
	}
}
