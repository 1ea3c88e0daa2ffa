package config

// DefaultFile is written when no config file exists. Secrets are read from
// the environment (or a .env file) and do not belong here.
const DefaultFile = `# Synthesis engine: nls, nls-long, dashscope, gtts or mock
engine: "nls"
# Engine used after max_failures consecutive failures of the first one
fallback: ""
max_failures: 3

# Segmentation limits, in characters
segment:
  max_length: 500
  lookback: 50

pipeline:
  # Concurrent synthesis calls per article (1 is sequential)
  workers: 1
  # Minimum spacing between synthesis calls
  segment_delay: "1s"
  retry_attempts: 3
  retry_backoff: "1s"

job:
  # Pause between two articles
  article_delay: "2s"
  key_prefix: "readings/audio"
  # Prefix of assistant chat message audio (generate --messages)
  message_key_prefix: "assistant/audio"
  # Where dry runs write audio instead of uploading it
  output_dir: "audio"

mux:
  # ffmpeg or concat
  backend: "ffmpeg"
  ffmpeg: "ffmpeg"
  timeout: "2m"

cache:
  enabled: true
  # dir: "~/.cache/readaloud/audio"
  memory_mb: 64
  disk_mb: 1024
  ttl: "720h"
  compression_level: 3

# Aliyun Intelligent Speech Interaction.
# Needs ALIYUN_ACCESS_KEY_ID, ALIYUN_ACCESS_KEY_SECRET and ALIYUN_TTS_APP_KEY.
nls:
  voice: "zhixiaoxia"
  format: "mp3"
  sample_rate: 24000
  volume: 50
  speech_rate: 0
  timeout: "60s"
  regions: ["cn-shanghai", "cn-beijing"]
  token_margin: "5m"
  # Long-text task polling (engine nls-long)
  poll_interval: "5s"
  poll_timeout: "5m"

# DashScope CosyVoice. Needs DASHSCOPE_API_KEY.
dashscope:
  model: "cosyvoice-v1"
  voice: "longxiaochun"
  format: "mp3"
  sample_rate: 22050
  timeout: "60s"

# Google Translate TTS through gtts-cli
gtts:
  language: "zh-CN"
  slow: false
  binary: "gtts-cli"
  timeout: "30s"
  requests_per_minute: 50

# Object storage. Keys default to the Aliyun keys above.
oss:
  region: "oss-cn-beijing"
  bucket: ""
  # public_base_url: "https://cdn.example.com"

# DB_HOST, DB_PORT, DB_USER, DB_NAME override these; DB_PASSWORD is required.
database:
  host: ""
  port: 3306
  user: ""
  name: ""
`
