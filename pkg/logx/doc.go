package logx

// Package logx is a thin structured-logging facade over zerolog.
//
// It exists so the rest of the daemon can log through a stable, minimal API
// while sinks and levels stay hot-swappable via Service.Apply().
