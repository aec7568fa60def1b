package discovery

// Home Assistant templates. Placeholders %s are filled by fmt.Sprintf.
const (
	onPayload  = `{"on":true}`
	offPayload = `{"on":false}`

	lightStateValueTemplate = `{%- if value_json.on -%}{"on":true}{%- else -%}{"on":false}{%- endif -%}`

	// %s: scale factor (max/255), %s: max level
	dimmerCommandOnTemplate  = `{%%- if brightness is defined -%%} {"brightness": {{ (brightness * %s) | int }} } {%%- else -%%} {"brightness": %s } {%%- endif -%%}`
	dimmerCommandOffTemplate = `{"brightness": 0 }`
	dimmerStateTemplate      = `{%- if value_json.brightness > 0 -%}on{%- else -%}off{%- endif -%}`

	// %s: scale factor (max/255)
	dimmerBrightnessTemplate = `{{ (value_json.brightness / %s) | int }}`

	switchValueTemplate = `{%- if value_json.on -%}ON{%- else -%}OFF{%- endif -%}`

	// %s: state key
	temperatureTemplate = `{{ value_json["%s"] }}`

	// %s: boolean state key
	flagTemplate = `{%%- if value_json.%s -%%}on{%%- else -%%}off{%%- endif -%%}`

	tamperTemplate  = `{%- if value_json.tamper == "opened" -%}on{%- else -%}off{%- endif -%}`
	batteryTemplate = `{%- if value_json.battery -%}100{%- else -%}0{%- endif -%}`
)
