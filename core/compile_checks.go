package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ CredentialStore      = (*MemoryCredentialStore)(nil)
	_ MetricsRecorder      = NopMetricsRecorder{}
	_ ConfigProvider       = (*CfgxConfigProvider)(nil)
	_ OptionsResolver      = GoOptionsResolver{}
	_ RawConfigLoader      = EnvLoader{}
	_ RawConfigLoader      = StaticRawConfigLoader{}
	_ TeamCredentialLister = (*MemoryCredentialStore)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
